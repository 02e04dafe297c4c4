// Package matching reconciles the two card naming schemes in play: ids built
// locally from asset file names ("5-6-ninos-Anthony Upégui") and refs issued by
// the backend ("5-6-anthony-upegui").
package matching

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	ageBandHead = regexp.MustCompile(`^[0-9]+-[0-9]+(-|$)`)
)

// Normalize lowercases s, strips diacritics and collapses every run of
// non-alphanumerics into a single "-".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = nonAlnum.ReplaceAllString(out, "-")
	return strings.Trim(out, "-")
}

// PatternFromRef turns a backend ref into the pattern looked up in local ids:
// the normalized ref without its leading age band.
func PatternFromRef(ref string) string {
	return ageBandHead.ReplaceAllString(Normalize(ref), "")
}

// Matches reports whether localID names the card described by pattern.
// An empty pattern matches nothing.
func Matches(localID, pattern string) bool {
	if pattern == "" {
		return false
	}
	return strings.Contains(Normalize(localID), pattern)
}

// MatchAll returns every id in localIDs matched by the backend ref.
func MatchAll(localIDs []string, ref string) []string {
	pattern := PatternFromRef(ref)
	var out []string
	for _, id := range localIDs {
		if id == ref || Matches(id, pattern) {
			out = append(out, id)
		}
	}
	return out
}
