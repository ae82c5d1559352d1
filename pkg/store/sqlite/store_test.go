package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntry() *kb.Entry {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	src := kb.Sources{{Document: "a.md", Time: at}}
	e := kb.NewEntry("swiftdata", "Persistence with SwiftData")
	e.Keywords = []string{"swiftdata", "@model"}
	e.Ceiling = 10
	e.Constraints = []kb.Constraint{{
		ID: "c1", Subject: "ObservableObject", Directive: kb.DirectiveAvoid, Replacement: "@Observable",
		Text: "Avoid `ObservableObject`.", MinVersion: "iOS 17", Sources: src, Status: kb.StatusAccepted, CreatedAt: at,
	}}
	e.DecisionRules = []kb.DecisionRule{{
		ID: "d1", Condition: "the list is long", Outcome: "use LazyVStack", Sources: src, Status: kb.StatusConflicted, CreatedAt: at,
	}}
	e.Patterns = []kb.Pattern{
		{ID: "p1", Title: "First", Language: "swift", Code: "import SwiftData", MinVersion: "iOS 17", Sources: src, Status: kb.StatusAccepted, CreatedAt: at},
		{ID: "p2", Title: "Second", Language: "swift", Code: "import SwiftUI", MinVersion: "iOS 18", Sources: src, Status: kb.StatusDeprecated, SupersededBy: "p1", CreatedAt: at},
	}
	e.References = []kb.Reference{{ID: "r1", URL: "https://developer.apple.com", Sources: src, Status: kb.StatusAccepted, CreatedAt: at}}
	return e
}

func TestStoreEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetEntry(ctx, "swiftdata")
	require.Error(t, err)
	assert.True(t, kb.IsNotFound(err))

	entry := sampleEntry()
	require.NoError(t, s.SaveEntry(ctx, entry, nil))

	loaded, err := s.GetEntry(ctx, "swiftdata")
	require.NoError(t, err)
	assert.Equal(t, entry.Description, loaded.Description)
	assert.Equal(t, entry.Keywords, loaded.Keywords)
	assert.Equal(t, 10, loaded.Ceiling)
	assert.Equal(t, entry.Constraints, loaded.Constraints)
	assert.Equal(t, entry.DecisionRules, loaded.DecisionRules)
	assert.Equal(t, entry.Patterns, loaded.Patterns, "record order is preserved")
	assert.Equal(t, entry.References, loaded.References)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestStoreSaveReplacesRecordsAndKeepsOverflow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := sampleEntry()
	require.NoError(t, s.SaveEntry(ctx, entry, nil))

	demoted := entry.Patterns[1]
	entry.Patterns = entry.Patterns[:1]
	overflow := []kb.OverflowRecord{{
		Entry:     entry.Name,
		Section:   kb.SectionPatterns,
		RecordID:  demoted.ID,
		Summary:   demoted.Summary(),
		Payload:   []byte(`{"id":"p2"}`),
		DemotedAt: time.Now().UTC(),
	}}
	require.NoError(t, s.SaveEntry(ctx, entry, overflow))
	require.NoError(t, s.SaveEntry(ctx, entry, overflow), "re-demoting the same record is ignored")

	loaded, err := s.GetEntry(ctx, entry.Name)
	require.NoError(t, err)
	require.Len(t, loaded.Patterns, 1)
	assert.Equal(t, "p1", loaded.Patterns[0].ID)

	records, err := s.ListOverflow(ctx, entry.Name)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p2", records[0].RecordID)
	assert.Equal(t, kb.SectionPatterns, records[0].Section)
	assert.JSONEq(t, `{"id":"p2"}`, string(records[0].Payload))

	summaries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "swiftdata", summaries[0].Name)
	assert.Equal(t, 4, summaries[0].RecordCount)
	assert.Equal(t, 1, summaries[0].OverflowCount)
}

func TestStoreReports(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	started := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	report := kb.NewChangeReport("run-1", started)
	report.FinishedAt = started.Add(time.Second)
	report.Documents = 2
	report.SetAction("swiftdata", kb.ActionUpdated)
	report.Append(
		kb.Change{Entry: "swiftdata", Kind: kb.ChangeAdded, Section: kb.SectionPatterns, RecordID: "p1", Document: "a.md", Detail: "pattern"},
		kb.Change{Entry: "swiftdata", Kind: kb.ChangeDuplicate, Detail: "dup"},
	)
	report.AddUnresolved("x.md", "no extractable keywords")
	require.NoError(t, s.SaveReport(ctx, report))

	older := kb.NewChangeReport("run-0", started.Add(-time.Hour))
	older.FinishedAt = older.StartedAt
	older.DryRun = true
	require.NoError(t, s.SaveReport(ctx, older))

	loaded, err := s.GetReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.Changes, loaded.Changes)
	assert.Equal(t, report.Entries, loaded.Entries)
	assert.Equal(t, report.Unresolved, loaded.Unresolved)
	assert.Equal(t, 2, loaded.Documents)
	assert.True(t, started.Equal(loaded.StartedAt))

	runs, err := s.ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, 2, runs[0].Changes)
	assert.True(t, runs[1].DryRun)

	runs, err = s.ListReports(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = s.GetReport(ctx, "missing")
	assert.ErrorContains(t, err, "run not found")
}
