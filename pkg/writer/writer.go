// Package writer persists merged entries. It refuses any entry holding a
// record without a version tag or source, keeps every section under its
// ceiling by demoting records to the overflow store, and renders the
// entry directory when a skills directory is configured.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/makgunay/claude-swift-skills/pkg/logger"
	"github.com/makgunay/claude-swift-skills/pkg/render"
	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/skills"
	"github.com/makgunay/claude-swift-skills/pkg/store"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

// Writer persists entries to a store.
type Writer struct {
	store     store.Store
	skillsDir string
	ceiling   int
	dryRun    bool
	attempts  uint
	now       func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithSkillsDir renders SKILL.md directories under dir after each write.
func WithSkillsDir(dir string) Option {
	return func(w *Writer) { w.skillsDir = dir }
}

// WithCeiling sets the section ceiling for entries without their own.
func WithCeiling(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.ceiling = n
		}
	}
}

// WithDryRun validates and plans demotions without persisting anything.
func WithDryRun(dryRun bool) Option {
	return func(w *Writer) { w.dryRun = dryRun }
}

// WithRetryAttempts sets how often a busy database is retried.
func WithRetryAttempts(n uint) Option {
	return func(w *Writer) { w.attempts = n }
}

// WithClock overrides the demotion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// New creates a Writer. A nil store is allowed in dry-run mode.
func New(st store.Store, opts ...Option) *Writer {
	w := &Writer{
		store:    st,
		ceiling:  ruleset.DefaultCeiling,
		attempts: 5,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Result describes a completed write.
type Result struct {
	Entry    *kb.Entry
	Overflow []kb.OverflowRecord
	Changes  []kb.Change
	Files    []string
}

// Write validates the entry, enforces the section ceiling and persists it
// together with the demoted records. An invalid record fails the whole
// write and nothing is stored.
func (w *Writer) Write(ctx context.Context, entry *kb.Entry) (*Result, error) {
	if err := Validate(entry); err != nil {
		return nil, errors.Wrapf(err, "refusing to write entry %s", entry.Name)
	}

	entry = entry.Clone()
	overflow, changes, err := w.enforceCeiling(entry)
	if err != nil {
		return nil, err
	}
	result := &Result{Entry: entry, Overflow: overflow, Changes: changes}

	if w.dryRun {
		return result, nil
	}
	if w.store == nil {
		return nil, errors.New("writer has no store")
	}

	entry.UpdatedAt = w.now()
	err = retry.Do(
		func() error {
			return w.store.SaveEntry(ctx, entry, overflow)
		},
		retry.Context(ctx),
		retry.RetryIf(isBusy),
		retry.Attempts(w.attempts),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField(logger.FieldEntry, entry.Name).
				WithField("attempt", n+1).Warn("database busy, retrying entry write")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to persist entry %s", entry.Name)
	}

	if w.skillsDir != "" {
		files, err := w.renderFiles(ctx, entry)
		if err != nil {
			return nil, err
		}
		result.Files = files
	}

	logger.G(ctx).WithField(logger.FieldEntry, entry.Name).
		WithField("demoted", len(overflow)).
		Info("entry written")

	return result, nil
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (w *Writer) ceilingFor(e *kb.Entry) int {
	if e.Ceiling > 0 {
		return e.Ceiling
	}
	return w.ceiling
}

// demotable is the view of a record the ceiling policy needs.
type demotable struct {
	status  kb.Status
	created time.Time
	summary string
}

// victim picks the record to demote: superseded or deprecated history
// first, then the oldest accepted record. Conflicted records stay visible
// until resolved.
func victim(records []demotable) (int, bool) {
	best := -1
	for i, r := range records {
		if r.status == kb.StatusConflicted {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bi, ri := !records[best].status.Active(), !r.status.Active()
		if ri != bi {
			if ri {
				best = i
			}
			continue
		}
		if r.created.Before(records[best].created) {
			best = i
		}
	}
	return best, best >= 0
}

// trimSection demotes records until the section fits the ceiling.
func trimSection[T any](records []T, ceiling int, view func(T) demotable, demote func(T, string) error) ([]T, error) {
	for len(records) > ceiling {
		views := make([]demotable, len(records))
		for i, r := range records {
			views[i] = view(r)
		}
		i, ok := victim(views)
		if !ok {
			break
		}
		if err := demote(records[i], views[i].summary); err != nil {
			return nil, err
		}
		records = append(records[:i], records[i+1:]...)
	}
	return records, nil
}

func (w *Writer) enforceCeiling(e *kb.Entry) ([]kb.OverflowRecord, []kb.Change, error) {
	ceiling := w.ceilingFor(e)
	var overflow []kb.OverflowRecord
	var changes []kb.Change

	demote := func(section kb.Section, recordID string, record any, summary string) error {
		payload, err := json.Marshal(record)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s %s", section.Singular(), recordID)
		}
		overflow = append(overflow, kb.OverflowRecord{
			Entry:     e.Name,
			Section:   section,
			RecordID:  recordID,
			Summary:   summary,
			Payload:   payload,
			DemotedAt: w.now(),
		})
		changes = append(changes, kb.Change{
			Entry:    e.Name,
			Kind:     kb.ChangeDemoted,
			Section:  section,
			RecordID: recordID,
			Detail:   fmt.Sprintf("%s %q moved to overflow (ceiling %d)", section.Singular(), summary, ceiling),
		})
		return nil
	}

	var err error
	e.Constraints, err = trimSection(e.Constraints, ceiling,
		func(r kb.Constraint) demotable { return demotable{r.Status, r.CreatedAt, r.Summary()} },
		func(r kb.Constraint, summary string) error { return demote(kb.SectionConstraints, r.ID, r, summary) })
	if err != nil {
		return nil, nil, err
	}
	e.DecisionRules, err = trimSection(e.DecisionRules, ceiling,
		func(r kb.DecisionRule) demotable { return demotable{r.Status, r.CreatedAt, r.Summary()} },
		func(r kb.DecisionRule, summary string) error { return demote(kb.SectionDecisionRules, r.ID, r, summary) })
	if err != nil {
		return nil, nil, err
	}
	e.Patterns, err = trimSection(e.Patterns, ceiling,
		func(r kb.Pattern) demotable { return demotable{r.Status, r.CreatedAt, r.Summary()} },
		func(r kb.Pattern, summary string) error { return demote(kb.SectionPatterns, r.ID, r, summary) })
	if err != nil {
		return nil, nil, err
	}
	e.References, err = trimSection(e.References, ceiling,
		func(r kb.Reference) demotable { return demotable{r.Status, r.CreatedAt, r.Summary()} },
		func(r kb.Reference, summary string) error { return demote(kb.SectionReferences, r.ID, r, summary) })
	if err != nil {
		return nil, nil, err
	}

	return overflow, changes, nil
}

// renderFiles writes SKILL.md and, when anything was demoted, the overflow
// document. Each file is written under a file lock.
func (w *Writer) renderFiles(ctx context.Context, entry *kb.Entry) ([]string, error) {
	dir := filepath.Join(w.skillsDir, entry.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create entry directory %s", dir)
	}

	content, err := render.Entry(entry)
	if err != nil {
		return nil, err
	}
	skillPath := filepath.Join(dir, skills.FileName)
	if err := lockedfile.Write(skillPath, bytes.NewReader([]byte(content)), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", skillPath)
	}
	files := []string{skillPath}

	overflow, err := w.store.ListOverflow(ctx, entry.Name)
	if err != nil {
		return nil, err
	}
	if len(overflow) > 0 {
		overflowPath := filepath.Join(dir, filepath.FromSlash(render.OverflowFile))
		if err := os.MkdirAll(filepath.Dir(overflowPath), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", filepath.Dir(overflowPath))
		}
		doc := render.Overflow(entry.Name, overflow)
		if err := lockedfile.Write(overflowPath, bytes.NewReader([]byte(doc)), 0o644); err != nil {
			return nil, errors.Wrapf(err, "failed to write %s", overflowPath)
		}
		files = append(files, overflowPath)
	}

	return files, nil
}
