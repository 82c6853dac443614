package markdown

import (
	"strings"
	"unicode"
)

// Slug turns heading text into its anchor: lowercased, every run of
// non-alphanumeric runes collapsed into a single "-", no leading or
// trailing "-". Slug(Slug(s)) == Slug(s).
func Slug(text string) string {
	parts := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(parts, "-")
}
