package kb

import (
	"fmt"
	"strings"
)

// Summary returns a one-line description of the pattern.
func (p Pattern) Summary() string {
	title := p.Title
	if title == "" {
		title = firstLine(p.Code)
	}
	if p.Language != "" {
		return fmt.Sprintf("%s (%s)", title, p.Language)
	}
	return title
}

// Summary returns a one-line description of the constraint.
func (c Constraint) Summary() string {
	s := fmt.Sprintf("%s `%s`", c.Directive, c.Subject)
	if c.Replacement != "" {
		s += fmt.Sprintf(", use `%s`", c.Replacement)
	}
	return s
}

// Summary returns a one-line description of the decision rule.
func (d DecisionRule) Summary() string {
	return fmt.Sprintf("if %s → %s", d.Condition, d.Outcome)
}

// Summary returns a one-line description of the reference.
func (r Reference) Summary() string {
	if r.Title == "" || r.Title == r.URL {
		return r.URL
	}
	return fmt.Sprintf("%s <%s>", r.Title, r.URL)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 60 {
		s = string(r[:60]) + "…"
	}
	return s
}
