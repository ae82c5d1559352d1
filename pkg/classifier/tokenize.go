package classifier

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	importRe    = regexp.MustCompile(`(?m)^\s*(?:@testable\s+)?import\s+(?:(?:struct|class|enum|protocol|func|typealias)\s+)?([A-Za-z_][A-Za-z0-9_.]*)`)
	callRe      = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\(`)
	attributeRe = regexp.MustCompile(`[@#][A-Za-z_][A-Za-z0-9_]*`)
	identRe     = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*`)
	phraseRe    = regexp.MustCompile(`\b[A-Z][a-z0-9]+(?:\s+[A-Z][a-z0-9]+)+\b`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "do": true, "for": true, "from": true, "has": true, "have": true,
	"if": true, "in": true, "into": true, "is": true, "it": true, "its": true, "let": true,
	"not": true, "of": true, "on": true, "or": true, "self": true, "so": true, "that": true,
	"the": true, "then": true, "this": true, "to": true, "use": true, "var": true, "was": true,
	"when": true, "with": true, "you": true, "your": true, "func": true, "return": true,
	"true": true, "false": true, "nil": true, "new": true, "all": true, "can": true,
	"will": true, "should": true, "must": true, "never": true, "always": true, "instead": true,
}

// Tokenize extracts the identifier-like keyword set of a document: import
// names, API-call-shaped tokens, attributes, CamelCase and dotted
// identifiers, and capitalized multi-word phrases. Tokens are lowercased,
// stop words dropped, and the result is sorted.
func Tokenize(text string) []string {
	set := make(map[string]struct{})
	add := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if len(tok) < 2 || stopWords[tok] {
			return
		}
		set[tok] = struct{}{}
	}

	for _, m := range importRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range callRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
		// a dotted call contributes its final member too: `.modelContainer(`
		if i := strings.LastIndexByte(m[1], '.'); i >= 0 {
			add(m[1][i+1:])
		}
	}
	for _, m := range attributeRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range identRe.FindAllString(text, -1) {
		if strings.Contains(m, ".") {
			add(m)
			for _, part := range strings.Split(m, ".") {
				if isIdentifierShaped(part) {
					add(part)
				}
			}
			continue
		}
		if isIdentifierShaped(m) {
			add(m)
		}
	}
	for _, m := range phraseRe.FindAllString(text, -1) {
		add(strings.Join(strings.Fields(m), " "))
	}

	tokens := make([]string, 0, len(set))
	for tok := range set {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// isIdentifierShaped reports whether a word looks like code rather than
// plain prose: CamelCase, lowerCamelCase, snake_case, Capitalized type
// names, or words mixing letters and digits.
func isIdentifierShaped(word string) bool {
	if strings.Contains(word, "_") {
		return true
	}
	var innerUpper, lower, digit bool
	for i, r := range word {
		switch {
		case unicode.IsUpper(r) && i > 0:
			innerUpper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if innerUpper && lower {
		return true
	}
	if len(word) > 2 && unicode.IsUpper(rune(word[0])) && lower {
		return true
	}
	return digit && (lower || innerUpper)
}
