package slug

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	nonWord  = regexp.MustCompile(`[^a-z0-9]+`)
	edgeDash = regexp.MustCompile(`^-+|-+$`)
)

// Make derives a filesystem-safe slug from a display name. Accented letters
// are reduced to their base form before non-word runs collapse to '-'.
func Make(name string) string {
	s, _, err := transform.String(deaccent, strings.TrimSpace(name))
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, "-")
	s = edgeDash.ReplaceAllString(s, "")
	if s == "" {
		return "job"
	}
	return s
}

// Unique suffixes base with -2, -3, ... until exists reports a free slug.
func Unique(base string, exists func(string) bool) string {
	if !exists(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !exists(candidate) {
			return candidate
		}
	}
}
