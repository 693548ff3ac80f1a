// Package normalize prepares free text for keyword matching.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the shortest token kept as a learnable keyword.
const MinTokenLength = 3

// amountLike matches numbers with an optional short unit suffix ("50", "12usd", "3k").
var amountLike = regexp.MustCompile(`^[0-9]+[a-z]{0,3}$`)

// stopwords are currency and number words in the supported languages.
var stopwords = map[string]struct{}{
	// currencies
	"usd": {}, "eur": {}, "gbp": {}, "mxn": {}, "cop": {}, "ars": {}, "clp": {}, "brl": {},
	"dollar": {}, "dollars": {}, "dolar": {}, "dolares": {}, "buck": {}, "bucks": {},
	"euro": {}, "euros": {}, "peso": {}, "pesos": {}, "pound": {}, "pounds": {},
	"cent": {}, "cents": {}, "centavo": {}, "centavos": {}, "real": {}, "reais": {},
	// numbers
	"one": {}, "two": {}, "three": {}, "four": {}, "five": {}, "six": {}, "seven": {},
	"eight": {}, "nine": {}, "ten": {}, "twenty": {}, "fifty": {}, "hundred": {}, "thousand": {},
	"uno": {}, "una": {}, "dos": {}, "tres": {}, "cuatro": {}, "cinco": {}, "seis": {},
	"siete": {}, "ocho": {}, "nueve": {}, "diez": {}, "veinte": {}, "cincuenta": {},
	"cien": {}, "ciento": {}, "mil": {},
	// filler around amounts
	"for": {}, "and": {}, "the": {}, "por": {}, "con": {}, "del": {}, "los": {}, "las": {},
}

// FoldAccents strips combining marks: "café" becomes "cafe".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Text case-folds, strips accents, trims and collapses whitespace.
func Text(s string) string {
	s = cases.Fold().String(s)
	s = FoldAccents(s)
	return strings.Join(strings.Fields(s), " ")
}

// Keyword normalizes a single seed or learned keyword the same way as Text.
func Keyword(s string) string {
	return Text(s)
}

// Tokens splits text into candidate keywords for learning. Tokens shorter than
// MinTokenLength, amounts and stopwords are dropped; order of first appearance
// is kept and duplicates removed.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Text(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < MinTokenLength {
			continue
		}
		if amountLike.MatchString(f) {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// Matches applies the symmetric substring rule: the keyword occurs in the
// text, or the whole text occurs in the keyword. Empty inputs never match.
func Matches(text, keyword string) bool {
	if text == "" || keyword == "" {
		return false
	}
	return strings.Contains(text, keyword) || strings.Contains(keyword, text)
}
