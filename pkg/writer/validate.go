package writer

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/extractor"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

func missing(section kb.Section, id, field string) error {
	return errors.Wrapf(kb.ErrMissingRequiredField, "%s %s: %s", section.Singular(), id, field)
}

func checkSources(section kb.Section, id string, sources kb.Sources) error {
	if len(sources) == 0 {
		return missing(section, id, "source citation")
	}
	for _, s := range sources {
		if s.Document == "" {
			return missing(section, id, "source citation")
		}
	}
	return nil
}

// CheckPattern validates the required fields of a pattern.
func CheckPattern(p kb.Pattern) error {
	switch {
	case p.ID == "":
		return missing(kb.SectionPatterns, "?", "id")
	case p.Code == "":
		return missing(kb.SectionPatterns, p.ID, "code")
	case p.MinVersion == "":
		return missing(kb.SectionPatterns, p.ID, "version tag")
	}
	return checkSources(kb.SectionPatterns, p.ID, p.Sources)
}

// CheckConstraint validates the required fields of a constraint.
func CheckConstraint(c kb.Constraint) error {
	switch {
	case c.ID == "":
		return missing(kb.SectionConstraints, "?", "id")
	case c.Subject == "":
		return missing(kb.SectionConstraints, c.ID, "subject")
	case c.MinVersion == "":
		return missing(kb.SectionConstraints, c.ID, "version tag")
	}
	return checkSources(kb.SectionConstraints, c.ID, c.Sources)
}

// CheckDecisionRule validates the required fields of a decision rule.
func CheckDecisionRule(d kb.DecisionRule) error {
	switch {
	case d.ID == "":
		return missing(kb.SectionDecisionRules, "?", "id")
	case d.Condition == "" || d.Outcome == "":
		return missing(kb.SectionDecisionRules, d.ID, "condition and outcome")
	}
	return checkSources(kb.SectionDecisionRules, d.ID, d.Sources)
}

// CheckReference validates the required fields of a reference.
func CheckReference(r kb.Reference) error {
	switch {
	case r.ID == "":
		return missing(kb.SectionReferences, "?", "id")
	case r.URL == "":
		return missing(kb.SectionReferences, r.ID, "url")
	}
	return checkSources(kb.SectionReferences, r.ID, r.Sources)
}

// Validate checks every record of an entry and aggregates the failures.
func Validate(e *kb.Entry) error {
	var result *multierror.Error
	if e.Name == "" {
		result = multierror.Append(result, errors.Wrap(kb.ErrMissingRequiredField, "entry name"))
	}
	for _, r := range e.Constraints {
		if err := CheckConstraint(r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, r := range e.DecisionRules {
		if err := CheckDecisionRule(r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, r := range e.Patterns {
		if err := CheckPattern(r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, r := range e.References {
		if err := CheckReference(r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Screen splits an extraction result into the records the writer would
// accept and a rejected change for each record it would refuse. Review
// notes of rejected records are dropped with them.
func Screen(res *extractor.Result) (*extractor.Result, []kb.Change) {
	valid := &extractor.Result{Document: res.Document, Entry: res.Entry}
	rejectedIDs := make(map[string]bool)
	var rejected []kb.Change

	reject := func(section kb.Section, id, summary string, err error) {
		rejectedIDs[id] = true
		rejected = append(rejected, kb.Change{
			Entry:    res.Entry,
			Kind:     kb.ChangeRejected,
			Section:  section,
			RecordID: id,
			Document: res.Document,
			Detail:   fmt.Sprintf("%s %q rejected: %s", section.Singular(), summary, err),
		})
	}

	for _, r := range res.Constraints {
		if err := CheckConstraint(r); err != nil {
			reject(kb.SectionConstraints, r.ID, r.Summary(), err)
			continue
		}
		valid.Constraints = append(valid.Constraints, r)
	}
	for _, r := range res.DecisionRules {
		if err := CheckDecisionRule(r); err != nil {
			reject(kb.SectionDecisionRules, r.ID, r.Summary(), err)
			continue
		}
		valid.DecisionRules = append(valid.DecisionRules, r)
	}
	for _, r := range res.Patterns {
		if err := CheckPattern(r); err != nil {
			reject(kb.SectionPatterns, r.ID, r.Summary(), err)
			continue
		}
		valid.Patterns = append(valid.Patterns, r)
	}
	for _, r := range res.References {
		if err := CheckReference(r); err != nil {
			reject(kb.SectionReferences, r.ID, r.Summary(), err)
			continue
		}
		valid.References = append(valid.References, r)
	}

	for _, n := range res.Notes {
		if !rejectedIDs[n.RecordID] {
			valid.Notes = append(valid.Notes, n)
		}
	}
	return valid, rejected
}
