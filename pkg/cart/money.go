package cart

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MinimumDonation is the smallest pledge accepted per card, in pesos.
const MinimumDonation int64 = 90000

var pricePrinter = message.NewPrinter(language.MustParse("es-CO"))

// FormatPrice formats whole pesos the way the storefront shows them, e.g. $90.000.
func FormatPrice(amount int64) string {
	if amount < 0 {
		return "-$" + pricePrinter.Sprintf("%d", -amount)
	}
	return "$" + pricePrinter.Sprintf("%d", amount)
}

// ParseAmount reads a peso amount typed by a user. Dots are thousands
// separators and anything after a decimal comma is dropped. Invalid or
// negative input is 0.
func ParseAmount(s string) int64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	s = strings.NewReplacer(".", "", " ", "", " ", "").Replace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
