// Package render turns knowledge entries into the SKILL.md documents that
// downstream tooling loads. Output is deterministic: sections always come
// in the fixed order and records keep their stored order.
package render

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/makgunay/claude-swift-skills/pkg/skills"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// OverflowFile is the path of the overflow document relative to the entry
// directory.
const OverflowFile = "references/overflow.md"

// Entry renders the SKILL.md document of an entry.
func Entry(e *kb.Entry) (string, error) {
	front, err := yaml.Marshal(skills.Metadata{
		Name:        e.Name,
		Description: e.Description,
		Keywords:    e.Keywords,
		Ceiling:     e.Ceiling,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal frontmatter")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", e.Name)
	if e.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", e.Description)
	}

	for _, section := range kb.SectionOrder {
		fmt.Fprintf(&b, "## %s\n\n", section.Title())
		if e.Count(section) == 0 {
			b.WriteString("_None._\n\n")
			continue
		}
		switch section {
		case kb.SectionConstraints:
			for _, c := range e.Constraints {
				fmt.Fprintf(&b, "- %s%s\n", c.Text, annotate(c.MinVersion, c.Sources, c.Status))
			}
		case kb.SectionDecisionRules:
			for _, d := range e.DecisionRules {
				fmt.Fprintf(&b, "- **If** %s **then** %s%s\n", d.Condition, d.Outcome, annotate(d.MinVersion, d.Sources, d.Status))
			}
		case kb.SectionPatterns:
			for i, p := range e.Patterns {
				if i > 0 {
					b.WriteString("\n")
				}
				writePattern(&b, i+1, p)
			}
		case kb.SectionReferences:
			for _, r := range e.References {
				if r.Title != "" {
					fmt.Fprintf(&b, "- [%s](%s)\n", r.Title, r.URL)
				} else {
					fmt.Fprintf(&b, "- <%s>\n", r.URL)
				}
			}
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

func writePattern(b *strings.Builder, n int, p kb.Pattern) {
	title := p.Title
	if title == "" {
		title = fmt.Sprintf("Pattern %d", n)
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	fmt.Fprintf(b, "_%s_\n\n", strings.TrimPrefix(annotate(p.MinVersion, p.Sources, p.Status), " "))
	fmt.Fprintf(b, "```%s\n%s\n```\n", p.Language, p.Code)
}

// annotate formats the version, citations and any non-accepted status of
// a record.
func annotate(version string, sources kb.Sources, status kb.Status) string {
	var parts []string
	if version != "" {
		parts = append(parts, version)
	}
	if docs := sources.Documents(); len(docs) > 0 {
		parts = append(parts, "source: "+strings.Join(docs, ", "))
	}
	s := ""
	if len(parts) > 0 {
		s = " (" + strings.Join(parts, "; ") + ")"
	}
	if status != kb.StatusAccepted && status != "" {
		s += fmt.Sprintf(" **[%s]**", status)
	}
	return s
}

// Overflow renders the overflow document listing demoted records.
func Overflow(entry string, records []kb.OverflowRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: overflow\n\n", entry)
	b.WriteString("Records demoted from the entry once a section reached its ceiling.\n")

	for _, section := range kb.SectionOrder {
		var lines []string
		for _, r := range records {
			if r.Section == section {
				lines = append(lines, fmt.Sprintf("- %s (demoted %s)", r.Summary, r.DemotedAt.UTC().Format("2006-01-02")))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", section.Title(), strings.Join(lines, "\n"))
	}
	return b.String()
}
