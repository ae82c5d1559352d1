package merger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// Option configures a merge.
type Option func(*merge)

// WithOverflow lets the merge recognise records already demoted out of the
// entry, so re-ingesting their source never brings them back.
func WithOverflow(records []kb.OverflowRecord) Option {
	return func(m *merge) { m.overflowRecords = records }
}

// demoted holds the decoded overflow records of an entry.
type demoted struct {
	constraints   []kb.Constraint
	decisionRules []kb.DecisionRule
	patterns      []kb.Pattern
	references    []kb.Reference
}

func decodeOverflow(records []kb.OverflowRecord) (demoted, error) {
	var d demoted
	for _, r := range records {
		var err error
		switch r.Section {
		case kb.SectionConstraints:
			var c kb.Constraint
			if err = json.Unmarshal(r.Payload, &c); err == nil {
				d.constraints = append(d.constraints, c)
			}
		case kb.SectionDecisionRules:
			var dr kb.DecisionRule
			if err = json.Unmarshal(r.Payload, &dr); err == nil {
				d.decisionRules = append(d.decisionRules, dr)
			}
		case kb.SectionPatterns:
			var p kb.Pattern
			if err = json.Unmarshal(r.Payload, &p); err == nil {
				d.patterns = append(d.patterns, p)
			}
		case kb.SectionReferences:
			var ref kb.Reference
			if err = json.Unmarshal(r.Payload, &ref); err == nil {
				d.references = append(d.references, ref)
			}
		}
		if err != nil {
			return d, errors.Wrapf(err, "failed to decode overflow %s %s", r.Section.Singular(), r.RecordID)
		}
	}
	return d, nil
}

// demotedDuplicate records a duplicate of an overflow record.
func (m *merge) demotedDuplicate(section kb.Section, id, summary string) {
	m.record(kb.ChangeDuplicate, section, id,
		fmt.Sprintf("%s %s already in overflow; not re-added", section.Singular(), summary))
}

// demotedConstraint finds an agreeing overflow constraint. As with visible
// records, a source newer than the recommendation in force re-asserts the
// constraint instead of matching it.
func (m *merge) demotedConstraint(c kb.Constraint, newestActive time.Time) (kb.Constraint, bool) {
	key := NormalizeText(c.Subject)
	incoming := c.Sources.Latest()
	for _, existing := range m.overflow.constraints {
		if NormalizeText(existing.Subject) != key || !agrees(existing, c) {
			continue
		}
		if existing.Status.Active() || !incoming.After(newestActive) {
			return existing, true
		}
	}
	return kb.Constraint{}, false
}

func (m *merge) demotedDecisionRule(d kb.DecisionRule) (kb.DecisionRule, bool) {
	key, outcome := NormalizeText(d.Condition), NormalizeText(d.Outcome)
	for _, existing := range m.overflow.decisionRules {
		if NormalizeText(existing.Condition) == key && NormalizeText(existing.Outcome) == outcome {
			return existing, true
		}
	}
	return kb.DecisionRule{}, false
}

func (m *merge) demotedPattern(p kb.Pattern) (kb.Pattern, bool) {
	key := NormalizeCode(p.Code)
	for _, existing := range m.overflow.patterns {
		if NormalizeCode(existing.Code) == key {
			return existing, true
		}
	}
	return kb.Pattern{}, false
}

func (m *merge) demotedReference(r kb.Reference) (kb.Reference, bool) {
	key := NormalizeURL(r.URL)
	for _, existing := range m.overflow.references {
		if NormalizeURL(existing.URL) == key {
			return existing, true
		}
	}
	return kb.Reference{}, false
}
