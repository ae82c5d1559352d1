package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// JSONField stores a value as a JSON text column.
type JSONField[T any] struct {
	Data T
}

// Scan implements sql.Scanner.
func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, &j.Data)
}

// Value implements driver.Valuer.
func (j JSONField[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type dbEntry struct {
	Name        string              `db:"name"`
	Description string              `db:"description"`
	Keywords    JSONField[[]string] `db:"keywords"`
	Ceiling     int                 `db:"ceiling"`
	CreatedAt   time.Time           `db:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at"`
}

type dbRecord struct {
	ID        string     `db:"id"`
	Entry     string     `db:"entry"`
	Section   kb.Section `db:"section"`
	Position  int        `db:"position"`
	Status    kb.Status  `db:"status"`
	Payload   string     `db:"payload"`
	CreatedAt time.Time  `db:"created_at"`
}

type dbOverflow struct {
	RecordID  string     `db:"record_id"`
	Entry     string     `db:"entry"`
	Section   kb.Section `db:"section"`
	Summary   string     `db:"summary"`
	Payload   string     `db:"payload"`
	DemotedAt time.Time  `db:"demoted_at"`
}

func (o dbOverflow) toOverflowRecord() kb.OverflowRecord {
	return kb.OverflowRecord{
		Entry:     o.Entry,
		Section:   o.Section,
		RecordID:  o.RecordID,
		Summary:   o.Summary,
		Payload:   []byte(o.Payload),
		DemotedAt: o.DemotedAt,
	}
}

type dbRun struct {
	ID         string                             `db:"id"`
	StartedAt  time.Time                          `db:"started_at"`
	FinishedAt time.Time                          `db:"finished_at"`
	DryRun     bool                               `db:"dry_run"`
	Documents  int                                `db:"documents"`
	Entries    JSONField[[]kb.EntryChange]        `db:"entries"`
	Unresolved JSONField[[]kb.UnresolvedDocument] `db:"unresolved"`
}

type dbChange struct {
	RunID string `db:"run_id"`
	Seq   int    `db:"seq"`
	kb.Change
}

// encodeRecords flattens the visible records of an entry into rows, in
// section order.
func encodeRecords(e *kb.Entry) ([]dbRecord, error) {
	var rows []dbRecord
	add := func(section kb.Section, pos int, id string, status kb.Status, created time.Time, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s %s", section.Singular(), id)
		}
		rows = append(rows, dbRecord{
			ID:        id,
			Entry:     e.Name,
			Section:   section,
			Position:  pos,
			Status:    status,
			Payload:   string(payload),
			CreatedAt: created,
		})
		return nil
	}

	for i, r := range e.Constraints {
		if err := add(kb.SectionConstraints, i, r.ID, r.Status, r.CreatedAt, r); err != nil {
			return nil, err
		}
	}
	for i, r := range e.DecisionRules {
		if err := add(kb.SectionDecisionRules, i, r.ID, r.Status, r.CreatedAt, r); err != nil {
			return nil, err
		}
	}
	for i, r := range e.Patterns {
		if err := add(kb.SectionPatterns, i, r.ID, r.Status, r.CreatedAt, r); err != nil {
			return nil, err
		}
	}
	for i, r := range e.References {
		if err := add(kb.SectionReferences, i, r.ID, r.Status, r.CreatedAt, r); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// decodeRecord appends one stored row to its entry section.
func decodeRecord(e *kb.Entry, row dbRecord) error {
	var err error
	switch row.Section {
	case kb.SectionConstraints:
		var r kb.Constraint
		if err = json.Unmarshal([]byte(row.Payload), &r); err == nil {
			e.Constraints = append(e.Constraints, r)
		}
	case kb.SectionDecisionRules:
		var r kb.DecisionRule
		if err = json.Unmarshal([]byte(row.Payload), &r); err == nil {
			e.DecisionRules = append(e.DecisionRules, r)
		}
	case kb.SectionPatterns:
		var r kb.Pattern
		if err = json.Unmarshal([]byte(row.Payload), &r); err == nil {
			e.Patterns = append(e.Patterns, r)
		}
	case kb.SectionReferences:
		var r kb.Reference
		if err = json.Unmarshal([]byte(row.Payload), &r); err == nil {
			e.References = append(e.References, r)
		}
	default:
		return errors.Errorf("record %s has unknown section %q", row.ID, row.Section)
	}
	return errors.Wrapf(err, "failed to decode record %s", row.ID)
}
