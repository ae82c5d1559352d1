// Package merger folds freshly extracted records into an entry. Duplicates
// only extend citations, stale records are superseded rather than removed,
// and substantive contradictions are held as conflicted for a human.
package merger

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/extractor"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/render"
	"github.com/makgunay/claude-swift-skills/pkg/skills"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// Outcome is the result of merging a batch of documents into one entry.
type Outcome struct {
	Entry   *kb.Entry
	Changes []kb.Change
	// Diff is the unified diff of the rendered entry before and after.
	Diff string
}

// Changed reports whether the merge altered the rendered entry.
func (o *Outcome) Changed() bool {
	return o.Diff != ""
}

type merge struct {
	entry   *kb.Entry
	changes []kb.Change
	doc     string

	overflowRecords []kb.OverflowRecord
	overflow        demoted
}

// Merge applies the results, in order, to a copy of current. Results are
// expected sorted by document time so later sources override earlier ones.
// The stored entry is never modified. Records matching the entry's overflow
// are reported as duplicates and not added again.
func Merge(ctx context.Context, current *kb.Entry, results []*extractor.Result, opts ...Option) (*Outcome, error) {
	if current == nil {
		return nil, errors.New("merge requires an entry")
	}
	before, err := render.Entry(current)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render entry %s", current.Name)
	}

	m := &merge{entry: current.Clone()}
	for _, opt := range opts {
		opt(m)
	}
	if m.overflow, err = decodeOverflow(m.overflowRecords); err != nil {
		return nil, err
	}
	for _, res := range results {
		m.doc = res.Document
		added := make(map[string]bool)

		for _, c := range res.Constraints {
			ok, err := m.constraint(c)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to merge constraint from %s", res.Document)
			}
			added[c.ID] = ok
		}
		for _, d := range res.DecisionRules {
			ok, err := m.decisionRule(d)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to merge decision rule from %s", res.Document)
			}
			added[d.ID] = ok
		}
		for _, p := range res.Patterns {
			ok, err := m.pattern(p)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to merge pattern from %s", res.Document)
			}
			added[p.ID] = ok
		}
		for _, r := range res.References {
			ok, err := m.reference(r)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to merge reference from %s", res.Document)
			}
			added[r.ID] = ok
		}

		// review flags only matter for records that made it into the entry
		for _, note := range res.Notes {
			if added[note.RecordID] {
				m.changes = append(m.changes, note)
			}
		}
	}

	after, err := render.Entry(m.entry)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to render entry %s", current.Name)
	}

	outcome := &Outcome{Entry: m.entry, Changes: m.changes}
	if before != after {
		file := path.Join(current.Name, skills.FileName)
		outcome.Diff = udiff.Unified("a/"+file, "b/"+file, before, after)
	}

	logger.G(ctx).WithField(logger.FieldEntry, current.Name).
		WithField("changes", len(m.changes)).
		Debug("merged entry")

	return outcome, nil
}

func (m *merge) record(kind kb.ChangeKind, section kb.Section, id, detail string) {
	m.changes = append(m.changes, kb.Change{
		Entry:    m.entry.Name,
		Kind:     kind,
		Section:  section,
		RecordID: id,
		Document: m.doc,
		Detail:   detail,
	})
}

// constraint merges one constraint and reports whether it was added.
func (m *merge) constraint(c kb.Constraint) (bool, error) {
	key := NormalizeText(c.Subject)
	incoming := c.Sources.Latest()

	var contradicting []int
	var newestActive time.Time
	for i := range m.entry.Constraints {
		existing := &m.entry.Constraints[i]
		if NormalizeText(existing.Subject) != key || agrees(*existing, c) || !existing.Status.Active() {
			continue
		}
		contradicting = append(contradicting, i)
		if t := existing.Sources.Latest(); t.After(newestActive) {
			newestActive = t
		}
	}

	// an agreeing record absorbs the citation unless the incoming source is
	// newer than whatever overrode that record
	for i := range m.entry.Constraints {
		existing := &m.entry.Constraints[i]
		if NormalizeText(existing.Subject) != key || !agrees(*existing, c) {
			continue
		}
		if existing.Status.Active() || !incoming.After(newestActive) {
			existing.Sources = existing.Sources.Union(c.Sources)
			m.record(kb.ChangeDuplicate, kb.SectionConstraints, existing.ID,
				fmt.Sprintf("constraint %s already present; citation merged", c.Summary()))
			return false, nil
		}
	}
	if existing, ok := m.demotedConstraint(c, newestActive); ok {
		m.demotedDuplicate(kb.SectionConstraints, existing.ID, c.Summary())
		return false, nil
	}

	status := kb.StatusAccepted
	if len(contradicting) > 0 && incoming.Before(newestActive) {
		// stale: keep it for audit, superseded by the newest active record
		status = kb.StatusSuperseded
		for _, i := range contradicting {
			if m.entry.Constraints[i].Sources.Latest().Equal(newestActive) {
				c.SupersededBy = m.entry.Constraints[i].ID
				break
			}
		}
	} else {
		for _, i := range contradicting {
			existing := &m.entry.Constraints[i]
			if existing.Sources.Latest().Before(incoming) {
				if err := kb.Transition(&existing.Status, kb.StatusSuperseded); err != nil {
					return false, err
				}
				existing.SupersededBy = c.ID
				m.record(kb.ChangeSuperseded, kb.SectionConstraints, existing.ID,
					fmt.Sprintf("constraint %s superseded by %s", existing.Summary(), c.Summary()))
				continue
			}
			if err := kb.Transition(&existing.Status, kb.StatusConflicted); err != nil {
				return false, err
			}
			status = kb.StatusConflicted
			m.record(kb.ChangeConflicted, kb.SectionConstraints, existing.ID,
				fmt.Sprintf("constraint %s contradicts %s from a source of the same date", existing.Summary(), c.Summary()))
		}
	}

	if err := kb.Transition(&c.Status, status); err != nil {
		return false, err
	}
	m.entry.Constraints = append(m.entry.Constraints, c)

	switch status {
	case kb.StatusSuperseded:
		m.record(kb.ChangeSuperseded, kb.SectionConstraints, c.ID,
			fmt.Sprintf("constraint %s is older than the recommendation in force; kept as superseded", c.Summary()))
	case kb.StatusConflicted:
		m.record(kb.ChangeConflicted, kb.SectionConstraints, c.ID,
			fmt.Sprintf("constraint %s held for manual resolution", c.Summary()))
	default:
		m.record(kb.ChangeAdded, kb.SectionConstraints, c.ID, "constraint "+c.Summary())
	}
	return true, nil
}

// agrees reports whether two constraints on the same subject give the same
// recommendation. A missing replacement is compatible with any.
func agrees(a, b kb.Constraint) bool {
	if a.Directive != b.Directive {
		return false
	}
	ra, rb := NormalizeText(a.Replacement), NormalizeText(b.Replacement)
	return ra == "" || rb == "" || ra == rb
}

func (m *merge) decisionRule(d kb.DecisionRule) (bool, error) {
	key := NormalizeText(d.Condition)
	outcome := NormalizeText(d.Outcome)

	for i := range m.entry.DecisionRules {
		existing := &m.entry.DecisionRules[i]
		if NormalizeText(existing.Condition) == key && NormalizeText(existing.Outcome) == outcome {
			existing.Sources = existing.Sources.Union(d.Sources)
			m.record(kb.ChangeDuplicate, kb.SectionDecisionRules, existing.ID,
				fmt.Sprintf("decision rule %q already present; citation merged", d.Summary()))
			return false, nil
		}
	}
	if existing, ok := m.demotedDecisionRule(d); ok {
		m.demotedDuplicate(kb.SectionDecisionRules, existing.ID, fmt.Sprintf("%q", d.Summary()))
		return false, nil
	}

	status := kb.StatusAccepted
	for i := range m.entry.DecisionRules {
		existing := &m.entry.DecisionRules[i]
		if NormalizeText(existing.Condition) != key || !existing.Status.Active() {
			continue
		}
		if err := kb.Transition(&existing.Status, kb.StatusConflicted); err != nil {
			return false, err
		}
		status = kb.StatusConflicted
		m.record(kb.ChangeConflicted, kb.SectionDecisionRules, existing.ID,
			fmt.Sprintf("decision rule %q has a competing outcome %q", existing.Summary(), d.Outcome))
	}

	if err := kb.Transition(&d.Status, status); err != nil {
		return false, err
	}
	m.entry.DecisionRules = append(m.entry.DecisionRules, d)
	if status == kb.StatusConflicted {
		m.record(kb.ChangeConflicted, kb.SectionDecisionRules, d.ID,
			fmt.Sprintf("decision rule %q held for manual resolution", d.Summary()))
	} else {
		m.record(kb.ChangeAdded, kb.SectionDecisionRules, d.ID, fmt.Sprintf("decision rule %q", d.Summary()))
	}
	return true, nil
}

func (m *merge) pattern(p kb.Pattern) (bool, error) {
	key := NormalizeCode(p.Code)
	for i := range m.entry.Patterns {
		existing := &m.entry.Patterns[i]
		if NormalizeCode(existing.Code) == key {
			existing.Sources = existing.Sources.Union(p.Sources)
			m.record(kb.ChangeDuplicate, kb.SectionPatterns, existing.ID,
				fmt.Sprintf("pattern %q already present; citation merged", p.Summary()))
			return false, nil
		}
	}
	if existing, ok := m.demotedPattern(p); ok {
		m.demotedDuplicate(kb.SectionPatterns, existing.ID, fmt.Sprintf("%q", p.Summary()))
		return false, nil
	}

	incoming := p.Sources.Latest()
	if p.Title != "" {
		title := NormalizeText(p.Title)
		for i := range m.entry.Patterns {
			existing := &m.entry.Patterns[i]
			if !existing.Status.Active() || existing.Language != p.Language || NormalizeText(existing.Title) != title {
				continue
			}
			if !existing.Sources.Latest().Before(incoming) {
				continue
			}
			if err := kb.Transition(&existing.Status, kb.StatusDeprecated); err != nil {
				return false, err
			}
			existing.SupersededBy = p.ID
			m.record(kb.ChangeDeprecated, kb.SectionPatterns, existing.ID,
				fmt.Sprintf("pattern %q deprecated by a newer example from %s", existing.Summary(), m.doc))
		}
	}

	if err := kb.Transition(&p.Status, kb.StatusAccepted); err != nil {
		return false, err
	}
	m.entry.Patterns = append(m.entry.Patterns, p)
	m.record(kb.ChangeAdded, kb.SectionPatterns, p.ID, fmt.Sprintf("pattern %q", p.Summary()))
	return true, nil
}

func (m *merge) reference(r kb.Reference) (bool, error) {
	key := NormalizeURL(r.URL)
	for i := range m.entry.References {
		existing := &m.entry.References[i]
		if NormalizeURL(existing.URL) == key {
			existing.Sources = existing.Sources.Union(r.Sources)
			if existing.Title == "" {
				existing.Title = r.Title
			}
			m.record(kb.ChangeDuplicate, kb.SectionReferences, existing.ID,
				fmt.Sprintf("reference %s already present; citation merged", r.URL))
			return false, nil
		}
	}
	if existing, ok := m.demotedReference(r); ok {
		m.demotedDuplicate(kb.SectionReferences, existing.ID, r.URL)
		return false, nil
	}
	if err := kb.Transition(&r.Status, kb.StatusAccepted); err != nil {
		return false, err
	}
	m.entry.References = append(m.entry.References, r)
	m.record(kb.ChangeAdded, kb.SectionReferences, r.ID, "reference "+r.Summary())
	return true, nil
}
