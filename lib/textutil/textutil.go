package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeSpaces collapses all runs of whitespace into a single space
// and trims the result. Every text-bearing extractor passes its output
// through this so comparisons against ground truth are stable.
func NormalizeSpaces(text string) string {
	return strings.Trim(whitespaceRegex.ReplaceAllString(text, " "), " ")
}

var deaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Deaccent strips combining marks, e.g. "Eletrônico" -> "Eletronico".
func Deaccent(text string) string {
	out, _, err := transform.String(deaccenter, text)
	if err != nil {
		return text
	}
	return out
}

// FoldKey produces a matching key for portal labels: uppercase, accent
// stripped, whitespace collapsed. The portal is inconsistent about
// accents ("PÚBLICO" vs "PUBLICO") across page variants.
func FoldKey(text string) string {
	return strings.ToUpper(Deaccent(NormalizeSpaces(text)))
}

// ContainsFold reports whether the folded form of text contains the
// folded form of substr.
func ContainsFold(text string, substr string) bool {
	return strings.Contains(FoldKey(text), FoldKey(substr))
}
