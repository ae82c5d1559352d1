package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/skills"
	"github.com/makgunay/claude-swift-skills/pkg/store"
	"github.com/makgunay/claude-swift-skills/pkg/store/sqlite"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

const testRules = `
version: 1
rules:
  - entry: alpha
    description: Alpha concurrency notes
    files: ["alpha-*"]
  - entry: beta
    description: Beta list patterns
    files: ["beta-*"]
    ceiling: 2
`

var day0 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func clock() time.Time { return day(30) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func rules(t *testing.T) *ruleset.Ruleset {
	t.Helper()
	rs, err := ruleset.Parse([]byte(testRules))
	require.NoError(t, err)
	return rs
}

func doc(name, content string, at time.Time) kb.IncomingDocument {
	return kb.IncomingDocument{Name: name, Content: content, Time: at, Format: kb.FormatMarkdown}
}

func patternDoc(name string, n int, at time.Time) kb.IncomingDocument {
	return doc(name, fmt.Sprintf("## Step %d (iOS 17)\n\n```swift\nimport SwiftUI\nlet step%d = %d\n```\n", n, n, n), at)
}

func kinds(changes []kb.Change) map[kb.ChangeKind]int {
	out := make(map[kb.ChangeKind]int)
	for _, c := range changes {
		out[c.Kind]++
	}
	return out
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := New(st, rules(t), WithClock(clock))
	docs := []kb.IncomingDocument{patternDoc("alpha-1.md", 1, day(1))}

	first, err := p.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, kb.ActionCreated, first.Report.Action("alpha"))

	before, err := st.GetEntry(ctx, "alpha")
	require.NoError(t, err)

	second, err := p.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, kb.ActionNone, second.Report.Action("alpha"))
	assert.Equal(t, map[kb.ChangeKind]int{kb.ChangeDuplicate: 1}, kinds(second.Report.Changes))
	assert.Empty(t, second.Diffs)

	after, err := st.GetEntry(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, before.Patterns, after.Patterns)
}

func TestRunContradictionNewerWinsRegardlessOfInputOrder(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := New(st, rules(t))

	older := doc("alpha-old.md", "Use `Task.detached` for heavy work (Swift 6).\n", day(1))
	newer := doc("alpha-new.md", "Never use `Task.detached` (Swift 6).\n", day(2))

	res, err := p.Run(ctx, []kb.IncomingDocument{newer, older})
	require.NoError(t, err)
	assert.Equal(t, kb.ActionCreated, res.Report.Action("alpha"))

	entry, err := st.GetEntry(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, entry.Constraints, 2)

	old, current := entry.Constraints[0], entry.Constraints[1]
	assert.Equal(t, []string{"alpha-old.md"}, old.Sources.Documents())
	assert.Equal(t, kb.StatusSuperseded, old.Status)
	assert.Equal(t, current.ID, old.SupersededBy)
	assert.Equal(t, kb.DirectiveAvoid, current.Directive)
	assert.Equal(t, kb.StatusAccepted, current.Status)

	superseded := res.Report.ChangesOfKind(kb.ChangeSuperseded)
	require.Len(t, superseded, 1)
	assert.Equal(t, old.ID, superseded[0].RecordID)
}

func TestRunProseOnlyDocumentChangesNothing(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := New(st, rules(t))

	_, err := p.Run(ctx, []kb.IncomingDocument{patternDoc("alpha-1.md", 1, day(1))})
	require.NoError(t, err)

	res, err := p.Run(ctx, []kb.IncomingDocument{doc("alpha-musings.md", "Concurrency is a journey.\n", day(2))})
	require.NoError(t, err)
	assert.Equal(t, kb.ActionNone, res.Report.Action("alpha"))
	assert.Empty(t, res.Report.Changes)
}

func TestRunUnresolvedDocuments(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	misc := doc("misc.md", "Hello there.\n", day(1))

	res, err := New(st, rules(t)).Run(ctx, []kb.IncomingDocument{misc})
	require.NoError(t, err)
	require.Len(t, res.Report.Unresolved, 1)
	assert.Equal(t, "misc.md", res.Report.Unresolved[0].Document)
	assert.NotEmpty(t, res.Report.Unresolved[0].Reason)
	assert.Empty(t, res.Report.Entries)
	require.Len(t, res.Classifications, 1)
	assert.True(t, res.Classifications[0].Unmapped)
}

func TestRunRoutesUnmappedDocuments(t *testing.T) {
	ctx := context.Background()
	notes := patternDoc("Misc Notes.md", 7, day(1))

	t.Run("create unmapped", func(t *testing.T) {
		st := newStore(t)
		res, err := New(st, rules(t), WithCreateUnmapped(true)).Run(ctx, []kb.IncomingDocument{notes})
		require.NoError(t, err)
		assert.Empty(t, res.Report.Unresolved)
		assert.Equal(t, kb.ActionCreated, res.Report.Action("misc-notes"))

		entry, err := st.GetEntry(ctx, "misc-notes")
		require.NoError(t, err)
		assert.Equal(t, "Knowledge collected from Misc Notes.md", entry.Description)
		assert.Contains(t, entry.Keywords, "swiftui")
		assert.Len(t, entry.Patterns, 1)
	})

	t.Run("fold into entry", func(t *testing.T) {
		st := newStore(t)
		res, err := New(st, rules(t), WithInto("alpha")).Run(ctx, []kb.IncomingDocument{notes})
		require.NoError(t, err)
		assert.Equal(t, kb.ActionCreated, res.Report.Action("alpha"))

		entry, err := st.GetEntry(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "Alpha concurrency notes", entry.Description)
		assert.Len(t, entry.Patterns, 1)
	})
}

func TestRunRejectsUncitableRecords(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	anonymous := patternDoc("", 1, day(1))

	res, err := New(st, rules(t), WithInto("alpha")).Run(ctx, []kb.IncomingDocument{anonymous})
	require.NoError(t, err)

	rejected := res.Report.ChangesOfKind(kb.ChangeRejected)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Detail, "source citation")
	assert.Equal(t, kb.ActionNone, res.Report.Action("alpha"))

	_, err = st.GetEntry(ctx, "alpha")
	assert.True(t, kb.IsNotFound(err), "rejected records never reach the entry")
}

func TestRunOverflowKeepsCeiling(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	dir := t.TempDir()
	p := New(st, rules(t), WithSkillsDir(dir), WithClock(clock))

	_, err := p.Run(ctx, []kb.IncomingDocument{
		patternDoc("beta-1.md", 1, day(1)),
		patternDoc("beta-2.md", 2, day(2)),
	})
	require.NoError(t, err)

	res, err := p.Run(ctx, []kb.IncomingDocument{patternDoc("beta-3.md", 3, day(3))})
	require.NoError(t, err)
	assert.Equal(t, kb.ActionUpdated, res.Report.Action("beta"))
	assert.Equal(t, 1, kinds(res.Report.Changes)[kb.ChangeDemoted])

	entry, err := st.GetEntry(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, entry.Patterns, 2)
	assert.Equal(t, "Step 2 (iOS 17)", entry.Patterns[0].Title)
	assert.Equal(t, "Step 3 (iOS 17)", entry.Patterns[1].Title)

	overflow, err := st.ListOverflow(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, overflow, 1)
	assert.Contains(t, overflow[0].Summary, "Step 1")

	skill, err := skills.LoadFile(filepath.Join(dir, "beta", skills.FileName))
	require.NoError(t, err)
	assert.Equal(t, "Beta list patterns", skill.Description)
	_, err = os.Stat(filepath.Join(dir, "beta", "references", "overflow.md"))
	assert.NoError(t, err)
	assert.Contains(t, res.Diffs["beta"], "+let step3 = 3")
}

func TestRunReingestAfterDemotionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	p := New(st, rules(t), WithClock(clock))
	docs := []kb.IncomingDocument{
		patternDoc("beta-1.md", 1, day(1)),
		patternDoc("beta-2.md", 2, day(2)),
		patternDoc("beta-3.md", 3, day(3)),
	}

	first, err := p.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, kb.ActionCreated, first.Report.Action("beta"))
	overflow, err := st.ListOverflow(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, overflow, 1)

	second, err := p.Run(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, kb.ActionNone, second.Report.Action("beta"))
	assert.Equal(t, map[kb.ChangeKind]int{kb.ChangeDuplicate: 3}, kinds(second.Report.Changes))
	assert.Empty(t, second.Diffs)

	overflow, err = st.ListOverflow(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, overflow, 1)
	entry, err := st.GetEntry(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, entry.Patterns, 2)
}

func TestRunCeilingPrecedence(t *testing.T) {
	const twoRules = `
version: 1
%s
rules:
  - entry: alpha
    files: ["alpha-*"]
%s
`
	tests := []struct {
		name     string
		header   string
		rule     string
		opts     []Option
		wantSeen int
	}{
		{
			name:     "default_ceiling beats configured ceiling",
			header:   "default_ceiling: 1",
			opts:     []Option{WithCeiling(ruleset.DefaultCeiling)},
			wantSeen: 1,
		},
		{
			name:     "rule override beats default_ceiling",
			header:   "default_ceiling: 1",
			rule:     "    ceiling: 3",
			opts:     []Option{WithCeiling(ruleset.DefaultCeiling)},
			wantSeen: 3,
		},
		{
			name:     "configured ceiling without default_ceiling",
			opts:     []Option{WithCeiling(2)},
			wantSeen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newStore(t)
			rs, err := ruleset.Parse([]byte(fmt.Sprintf(twoRules, tt.header, tt.rule)))
			require.NoError(t, err)

			_, err = New(st, rs, tt.opts...).Run(ctx, []kb.IncomingDocument{
				patternDoc("alpha-1.md", 1, day(1)),
				patternDoc("alpha-2.md", 2, day(2)),
				patternDoc("alpha-3.md", 3, day(3)),
			})
			require.NoError(t, err)

			entry, err := st.GetEntry(ctx, "alpha")
			require.NoError(t, err)
			assert.Len(t, entry.Patterns, tt.wantSeen)
		})
	}
}

func TestRunRuleCeilingEditReachesExistingEntry(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	_, err := New(st, rules(t)).Run(ctx, []kb.IncomingDocument{
		patternDoc("beta-1.md", 1, day(1)),
		patternDoc("beta-2.md", 2, day(2)),
	})
	require.NoError(t, err)

	loosened, err := ruleset.Parse([]byte("version: 1\nrules:\n  - entry: beta\n    files: [\"beta-*\"]\n    ceiling: 5\n"))
	require.NoError(t, err)
	res, err := New(st, loosened).Run(ctx, []kb.IncomingDocument{
		patternDoc("beta-3.md", 3, day(3)),
		patternDoc("beta-4.md", 4, day(4)),
	})
	require.NoError(t, err)
	assert.Zero(t, kinds(res.Report.Changes)[kb.ChangeDemoted])

	entry, err := st.GetEntry(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, entry.Patterns, 4)
	assert.Equal(t, 5, entry.Ceiling)
}

func TestRunDryRunPersistsNothing(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	res, err := New(st, rules(t), WithDryRun(true)).Run(ctx, []kb.IncomingDocument{patternDoc("alpha-1.md", 1, day(1))})
	require.NoError(t, err)
	assert.True(t, res.Report.DryRun)
	assert.Equal(t, kb.ActionCreated, res.Report.Action("alpha"))
	assert.Contains(t, res.Diffs["alpha"], "+import SwiftUI")

	_, err = st.GetEntry(ctx, "alpha")
	assert.True(t, kb.IsNotFound(err))
	runs, err := st.ListReports(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunPersistsReport(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	res, err := New(st, rules(t)).Run(ctx, []kb.IncomingDocument{
		patternDoc("alpha-1.md", 1, day(1)),
		doc("misc.md", "Hello there.\n", day(1)),
	})
	require.NoError(t, err)

	saved, err := st.GetReport(ctx, res.Report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Documents)
	assert.Equal(t, res.Report.Entries, saved.Entries)
	assert.Equal(t, res.Report.Changes, saved.Changes)
	assert.Len(t, saved.Unresolved, 1)
}

// failingStore fails every write of one entry.
type failingStore struct {
	store.Store
	entry string
}

func (f *failingStore) SaveEntry(ctx context.Context, entry *kb.Entry, overflow []kb.OverflowRecord) error {
	if entry.Name == f.entry {
		return errors.New("disk full")
	}
	return f.Store.SaveEntry(ctx, entry, overflow)
}

func TestRunEntryFailureDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: newStore(t), entry: "alpha"}

	res, err := New(st, rules(t), WithWorkers(1)).Run(ctx, []kb.IncomingDocument{
		patternDoc("alpha-1.md", 1, day(1)),
		patternDoc("beta-1.md", 1, day(1)),
	})
	require.NoError(t, err)

	failed := res.Report.ChangesOfKind(kb.ChangeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "alpha", failed[0].Entry)
	assert.Contains(t, failed[0].Detail, "disk full")
	assert.Equal(t, kb.ActionNone, res.Report.Action("alpha"))
	assert.Equal(t, kb.ActionCreated, res.Report.Action("beta"))
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Misc Notes.md":            "misc-notes",
		"docs/SwiftData_Tips.html": "swiftdata-tips",
		"--weird--.md":             "weird",
		"":                         "",
		"WWDC25: What's new.md":    "wwdc25-what-s-new",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}
