package reservation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// IDTypes are the identification document types the donor form offers.
var IDTypes = []string{
	"Cédula de Ciudadanía",
	"Cédula de Extranjería",
	"Pasaporte",
	"Tarjeta de Identidad",
	"NIT",
}

var (
	ErrInvalidDonor = errors.New("invalid donor data")

	emailRe = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phoneRe = regexp.MustCompile(`^\d{10}$`)
	spaceRe = regexp.MustCompile(`\s`)
)

// Child is a child of the donor studying at the school, reported with the donation.
type Child struct {
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

type Donor struct {
	Name         string  `json:"name"`
	IDType       string  `json:"id_type"`
	IDNumber     string  `json:"id_number"`
	Email        string  `json:"email"`
	Address      string  `json:"address"`
	Phone        string  `json:"phone"`
	Children     []Child `json:"children,omitempty"`
	AcceptPolicy bool    `json:"accept_policy"`
}

// ValidationError maps form fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return fmt.Sprintf("%s: %s", ErrInvalidDonor, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidDonor }

// Validate checks the donor form. It returns a *ValidationError listing every
// problem, or nil.
func (d Donor) Validate() error {
	errs := map[string]string{}

	if strings.TrimSpace(d.Name) == "" {
		errs["name"] = "El nombre completo es obligatorio"
	}
	if !validIDType(d.IDType) {
		errs["id_type"] = "Selecciona un tipo de identificación"
	}
	if strings.TrimSpace(d.IDNumber) == "" {
		errs["id_number"] = "El número de identificación es obligatorio"
	}
	if strings.TrimSpace(d.Address) == "" {
		errs["address"] = "La dirección es obligatoria"
	}

	switch {
	case strings.TrimSpace(d.Phone) == "":
		errs["phone"] = "El celular es obligatorio"
	case !phoneRe.MatchString(spaceRe.ReplaceAllString(d.Phone, "")):
		errs["phone"] = "Ingresa un número de celular válido (10 dígitos)"
	}

	email := strings.TrimSpace(d.Email)
	switch {
	case email == "":
		errs["email"] = "El correo electrónico es obligatorio"
	case !emailRe.MatchString(email) || !registrableDomain(email):
		errs["email"] = "Ingresa un correo válido"
	}

	for i, c := range d.Children {
		name, grade := strings.TrimSpace(c.Name), strings.TrimSpace(c.Grade)
		if (name == "") != (grade == "") {
			errs[fmt.Sprintf("children[%d]", i)] = fmt.Sprintf("Completa ambos campos para el hijo/a #%d", i+1)
		}
	}

	if !d.AcceptPolicy {
		errs["accept_policy"] = "Debes aceptar la política de tratamiento de datos"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validIDType(t string) bool {
	for _, v := range IDTypes {
		if v == t {
			return true
		}
	}
	return false
}

// registrableDomain rejects addresses whose domain is a bare public suffix
// or has no known suffix at all.
func registrableDomain(email string) bool {
	at := strings.LastIndex(email, "@")
	host := strings.ToLower(strings.TrimSuffix(email[at+1:], "."))
	_, err := publicsuffix.DomainFromListWithOptions(publicsuffix.DefaultList, host, &publicsuffix.FindOptions{IgnorePrivate: true})
	return err == nil
}

// FormatPeopleDonor serializes the cart the way the backend stores it:
// "Nombre: <name>, Valor: <amount>" entries joined by " | ".
func FormatPeopleDonor(items []cart.Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("Nombre: %s, Valor: %d", it.Name, it.Amount)
	}
	return strings.Join(parts, " | ")
}

// FormatChildren returns "Name (Grade), ..." for the complete pairs, or nil.
func FormatChildren(children []Child) *string {
	var parts []string
	for _, c := range children {
		name, grade := strings.TrimSpace(c.Name), strings.TrimSpace(c.Grade)
		if name != "" && grade != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, grade))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	s := strings.Join(parts, ", ")
	return &s
}

// BuildPayload turns a validated donor and the cart items into the backend body.
func BuildPayload(d Donor, items []cart.Item) backend.DonationPayload {
	return backend.DonationPayload{
		Name:        strings.TrimSpace(d.Name),
		IDType:      d.IDType,
		IDNumber:    strings.TrimSpace(d.IDNumber),
		Email:       strings.ToLower(strings.TrimSpace(d.Email)),
		Address:     strings.TrimSpace(d.Address),
		Phone:       spaceRe.ReplaceAllString(d.Phone, ""),
		Children:    FormatChildren(d.Children),
		PeopleDonor: FormatPeopleDonor(items),
	}
}
