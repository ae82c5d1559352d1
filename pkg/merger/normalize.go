package merger

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeCode is the duplicate key of a pattern: the NFKC form of the
// code with every whitespace rune removed.
func NormalizeCode(code string) string {
	code = norm.NFKC.String(code)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}

// NormalizeText is the comparison key of a subject, condition or outcome:
// NFKC, lowercased, code-span backticks and trailing punctuation dropped,
// whitespace collapsed.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "`", "")
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, ".!;:,")
}

// NormalizeURL is the duplicate key of a reference.
func NormalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}
