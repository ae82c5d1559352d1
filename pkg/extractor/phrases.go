package extractor

import (
	"regexp"
	"strings"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

var (
	labelRe = regexp.MustCompile(`(?i)^(?:[✅❌]\s*)?(do not|don[’']?t|do|avoid|prefer|never|always)\s*:\s*`)

	replaceRe    = regexp.MustCompile(`(?i)^(?:.*?\b)?replace\s+(.+?)\s+with\s+(.+)$`)
	insteadOfRe  = regexp.MustCompile(`(?i)^instead\s+of\s+(.+?),\s*(?:use|prefer)\s+(.+)$`)
	useInsteadRe = regexp.MustCompile(`(?i)^(?:always\s+|do\s+)?(?:use|prefer)\s+(.+?)\s+(?:instead\s+of|over|rather\s+than)\s+(.+)$`)
	avoidRe      = regexp.MustCompile(`(?i)^(?:don[’']?t|do\s+not|never|avoid)\s+(?:use\s+|using\s+|call\s+|calling\s+)?(.+)$`)
	useRe        = regexp.MustCompile(`(?i)^(?:always\s+|do\s+)?(?:use|prefer)\s+(.+)$`)
	deprecatedRe = regexp.MustCompile("(?i)^(.+?)\\s+(?:is|are)\\s+(?:now\\s+)?deprecated\\b[,;:]?\\s*(?:(?:in\\s+favou?r\\s+of|use|—|-)\\s+(.+))?")

	ifThenRe  = regexp.MustCompile(`(?i)^if\s+(.+?),?\s+then\s+(.+)$`)
	ifCommaRe = regexp.MustCompile(`(?i)^(?:if|when)\s+(.+?),\s*(.+)$`)
	arrowRe   = regexp.MustCompile(`^(.+?)\s*(?:→|->|=>)\s*(.+)$`)

	codeSpanRe = regexp.MustCompile("`([^`]+)`")
	subjectCut = regexp.MustCompile(`(?i)\s+(?:for|in|when|because|unless|since|so|on|inside|within|if|to)\s+|[,;:()]|\s+[—–-]\s+`)
)

// constraintFromSentence recognizes do/don't, use/avoid and replacement
// phrasing. ok is false when the sentence carries no directive.
func constraintFromSentence(sentence string) (subject string, directive kb.Directive, replacement string, ok bool) {
	s := strings.TrimSpace(strings.TrimRight(unlabel(sentence), ".!"))

	pick := func(subj string, d kb.Directive, repl string) (string, kb.Directive, string, bool) {
		subj = subjectOf(subj)
		if subj == "" {
			return "", "", "", false
		}
		return subj, d, subjectOf(repl), true
	}

	if m := replaceRe.FindStringSubmatch(s); m != nil {
		return pick(m[1], kb.DirectiveAvoid, m[2])
	}
	if m := insteadOfRe.FindStringSubmatch(s); m != nil {
		return pick(m[1], kb.DirectiveAvoid, m[2])
	}
	if m := useInsteadRe.FindStringSubmatch(s); m != nil {
		return pick(m[2], kb.DirectiveAvoid, m[1])
	}
	if m := avoidRe.FindStringSubmatch(s); m != nil {
		return pick(m[1], kb.DirectiveAvoid, "")
	}
	if m := useRe.FindStringSubmatch(s); m != nil {
		return pick(m[1], kb.DirectiveUse, "")
	}
	if m := deprecatedRe.FindStringSubmatch(s); m != nil {
		return pick(m[1], kb.DirectiveAvoid, m[2])
	}
	return "", "", "", false
}

// unlabel rewrites "Do: X" / "Don't: X" bullet labels into plain
// use/avoid phrasing.
func unlabel(sentence string) string {
	loc := labelRe.FindStringSubmatchIndex(sentence)
	if loc == nil {
		return sentence
	}
	label := strings.ToLower(sentence[loc[2]:loc[3]])
	rest := strings.TrimSpace(sentence[loc[1]:])
	lowerRest := strings.ToLower(rest)

	switch label {
	case "do", "prefer", "always":
		if strings.HasPrefix(lowerRest, "use ") || strings.HasPrefix(lowerRest, "prefer ") {
			return rest
		}
		return "use " + rest
	default:
		if avoidRe.MatchString(rest) {
			return rest
		}
		return "avoid " + rest
	}
}

// decisionFromSentence recognizes if/then, when/comma and arrow branching.
func decisionFromSentence(sentence string) (condition, outcome string, ok bool) {
	s := strings.TrimSpace(strings.TrimRight(sentence, ".!"))
	for _, re := range []*regexp.Regexp{ifThenRe, ifCommaRe, arrowRe} {
		if m := re.FindStringSubmatchIndex(s); m != nil {
			// an arrow inside a code span is a return type, not a branch
			if re == arrowRe && strings.Count(s[:m[3]], "`")%2 == 1 {
				continue
			}
			condition = strings.TrimSpace(s[m[2]:m[3]])
			outcome = strings.TrimSpace(s[m[4]:m[5]])
			if condition != "" && outcome != "" {
				return condition, outcome, true
			}
		}
	}
	return "", "", false
}

// subjectOf reduces a phrase to the thing a directive is about: the first
// code span when there is one, otherwise the leading words up to a
// qualifying clause.
func subjectOf(phrase string) string {
	phrase = strings.TrimSpace(phrase)
	if m := codeSpanRe.FindStringSubmatch(phrase); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := subjectCut.FindStringIndex(phrase); loc != nil && loc[0] > 0 {
		phrase = phrase[:loc[0]]
	}
	words := strings.Fields(phrase)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Trim(strings.Join(words, " "), ".!?\"'")
}

// splitSentences splits paragraph text on terminal punctuation followed by
// whitespace, never inside a code span.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	inCode := false
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if r == '`' {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}
