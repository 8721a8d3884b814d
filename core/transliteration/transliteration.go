// Package transliteration converts text to ASCII.
package transliteration

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultUnknown replaces characters that have no ASCII form.
const DefaultUnknown = "?"

// Characters that do not decompose into a base letter plus marks.
var replacements = map[rune]string{
	'ß': "ss", 'Æ': "AE", 'æ': "ae", 'Œ': "OE", 'œ': "oe",
	'Ø': "O", 'ø': "o", 'Đ': "D", 'đ': "d", 'Ł': "L", 'ł': "l",
	'Þ': "TH", 'þ': "th", 'Ð': "D", 'ð': "d", 'ı': "i",
	'‘': "'", '’': "'", '“': "\"", '”': "\"", '–': "-", '—': "-",
}

// Language-specific overrides, applied before decomposition.
var overrides = map[string]map[rune]string{
	"de": {'Ä': "Ae", 'ä': "ae", 'Ö': "Oe", 'ö': "oe", 'Ü': "Ue", 'ü': "ue"},
	"da": {'Å': "Aa", 'å': "aa"},
}

// Transliteration converts Unicode text to ASCII.
type Transliteration struct{}

// NewTransliteration creates a [Transliteration].
func NewTransliteration() *Transliteration {
	return &Transliteration{}
}

// Transliterate converts s to ASCII using the rules for langcode. Characters
// that cannot be converted become unknown, and the result is cut to maxLength
// bytes when maxLength is positive.
func (*Transliteration) Transliterate(s, langcode, unknown string, maxLength int) string {
	if over, ok := overrides[langcode]; ok {
		s = replace(s, over)
	}
	s = replace(s, replacements)

	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err == nil {
		s = stripped
	}

	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		} else {
			b.WriteString(unknown)
		}
	}

	out := b.String()
	if maxLength > 0 && len(out) > maxLength {
		out = out[:maxLength]
	}
	return out
}

func replace(s string, table map[rune]string) string {
	var b strings.Builder
	for _, r := range s {
		if rep, ok := table[r]; ok {
			b.WriteString(rep)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
