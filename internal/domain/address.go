package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCountry is appended to every firm address before geocoding.
const DefaultCountry = "BR"

// NormalizeAddress canonicalizes an address for cache lookups: accents and
// compatibility forms are folded to ASCII, letters are upper-cased, and runs of
// whitespace collapse to a single space. The function is idempotent.
func NormalizeAddress(s string) string {
	s = foldToASCII(strings.ToUpper(foldToASCII(ligatures.Replace(s))))
	return strings.Join(strings.Fields(s), " ")
}

// BuildFullAddress joins a street line and a "Municipality, State" city field
// into the normalized "STREET, MUNICIPALITY, STATE, COUNTRY" form.
func BuildFullAddress(street, city, country string) string {
	municipality, state, _ := strings.Cut(city, ",")
	parts := []string{
		cleanText(street),
		cleanText(municipality),
		cleanText(state),
		country,
	}
	return NormalizeAddress(strings.Join(parts, ", "))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ligatures spell out letters that have no single-letter ASCII form.
var ligatures = strings.NewReplacer(
	"ß", "SS", "ẞ", "SS",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"þ", "th", "Þ", "TH",
)

// strokes maps letters that do not decompose under NFKD to their base letter.
var strokes = map[rune]rune{
	'ø': 'o', 'Ø': 'O',
	'đ': 'd', 'Đ': 'D',
	'ð': 'd', 'Ð': 'D',
	'ł': 'l', 'Ł': 'L',
	'ħ': 'h', 'Ħ': 'H',
	'ı': 'i',
}

func mapStroke(r rune) rune {
	if base, ok := strokes[r]; ok {
		return base
	}
	return r
}

// foldToASCII decomposes s (NFKD), drops combining marks, replaces stroked
// letters, and recomposes. A fresh transformer is built per call because
// transform chains are stateful.
func foldToASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Map(mapStroke), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
