package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makgunay/claude-swift-skills/pkg/extractor"
	"github.com/makgunay/claude-swift-skills/pkg/render"
	"github.com/makgunay/claude-swift-skills/pkg/skills"
	"github.com/makgunay/claude-swift-skills/pkg/store/sqlite"
	"github.com/makgunay/claude-swift-skills/pkg/types/kb"
)

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func fixedClock() time.Time { return base.Add(48 * time.Hour) }

func pattern(id string, day int, status kb.Status) kb.Pattern {
	at := base.AddDate(0, 0, day)
	return kb.Pattern{
		ID:         id,
		Title:      "Pattern " + id,
		Language:   "swift",
		Code:       "import SwiftUI\nlet " + id + " = 1",
		MinVersion: "iOS 17",
		Sources:    kb.Sources{{Document: id + ".md", Time: at}},
		Status:     status,
		CreatedAt:  at,
	}
}

func patternIDs(ps []kb.Pattern) []string {
	var ids []string
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestValidate(t *testing.T) {
	src := kb.Sources{{Document: "a.md", Time: base}}
	tests := []struct {
		name    string
		entry   *kb.Entry
		wantErr string
	}{
		{
			name:  "valid entry",
			entry: &kb.Entry{Name: "beta", Patterns: []kb.Pattern{pattern("p1", 0, kb.StatusAccepted)}},
		},
		{
			name:    "pattern without version tag",
			entry:   &kb.Entry{Name: "beta", Patterns: []kb.Pattern{{ID: "p1", Code: "x", Sources: src}}},
			wantErr: "pattern p1: version tag",
		},
		{
			name:    "constraint without source",
			entry:   &kb.Entry{Name: "beta", Constraints: []kb.Constraint{{ID: "c1", Subject: "X", MinVersion: "iOS 17"}}},
			wantErr: "constraint c1: source citation",
		},
		{
			name:    "reference without url",
			entry:   &kb.Entry{Name: "beta", References: []kb.Reference{{ID: "r1", Sources: src}}},
			wantErr: "reference r1: url",
		},
		{
			name:    "missing entry name",
			entry:   &kb.Entry{},
			wantErr: "entry name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entry)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.True(t, errors.Is(err, kb.ErrMissingRequiredField))
		})
	}
}

func TestWriteRefusesInvalidEntryWithoutPartialWrite(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	w := New(st)

	entry := kb.NewEntry("beta", "Beta topic")
	entry.Patterns = []kb.Pattern{pattern("good", 0, kb.StatusAccepted), {ID: "bad", Code: "let x = 1"}}

	_, err := w.Write(ctx, entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, kb.ErrMissingRequiredField))

	_, err = st.GetEntry(ctx, "beta")
	assert.True(t, kb.IsNotFound(err), "nothing is persisted")
}

func TestScreen(t *testing.T) {
	doc := kb.IncomingDocument{
		Name:    "a.md",
		Content: "## Lists (iOS 17)\n\nAvoid `AnyView` in lists.\n\n```swift\nimport SwiftUI\nlet y = 2\n```\n",
		Time:    base,
		Format:  kb.FormatMarkdown,
	}
	res := extractor.Extract(context.Background(), doc, "beta")
	require.Len(t, res.Patterns, 1)
	require.Len(t, res.Constraints, 1)

	unsourced := pattern("unsourced", 0, kb.StatusProposed)
	unsourced.Sources = nil
	res.Patterns = append(res.Patterns, unsourced)
	res.Notes = append(res.Notes, kb.Change{Kind: kb.ChangeNeedsReview, RecordID: unsourced.ID})

	valid, rejected := Screen(res)
	assert.Len(t, valid.Patterns, 1)
	assert.Len(t, valid.Constraints, 1)
	assert.Equal(t, "iOS 17", valid.Patterns[0].MinVersion)
	assert.Empty(t, valid.Notes, "notes of rejected records are dropped")

	require.Len(t, rejected, 1)
	assert.Equal(t, kb.ChangeRejected, rejected[0].Kind)
	assert.Equal(t, "a.md", rejected[0].Document)
	assert.Equal(t, "unsourced", rejected[0].RecordID)
	assert.Contains(t, rejected[0].Detail, "source citation")
}

func TestWriteDemotesOldestPastCeiling(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	w := New(st, WithCeiling(2), WithClock(fixedClock))

	entry := kb.NewEntry("beta", "Beta topic")
	entry.Patterns = []kb.Pattern{
		pattern("p1", 1, kb.StatusAccepted),
		pattern("p0", 0, kb.StatusAccepted),
	}
	res, err := w.Write(ctx, entry)
	require.NoError(t, err)
	assert.Empty(t, res.Overflow)

	entry.Patterns = append(entry.Patterns, pattern("p2", 2, kb.StatusAccepted))
	res, err = w.Write(ctx, entry)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2"}, patternIDs(res.Entry.Patterns))
	require.Len(t, res.Overflow, 1)
	assert.Equal(t, "p0", res.Overflow[0].RecordID)
	assert.True(t, fixedClock().Equal(res.Overflow[0].DemotedAt))
	require.Len(t, res.Changes, 1)
	assert.Equal(t, kb.ChangeDemoted, res.Changes[0].Kind)
	assert.Contains(t, res.Changes[0].Detail, "ceiling 2")
	assert.Len(t, entry.Patterns, 3, "caller's entry is untouched")

	loaded, err := st.GetEntry(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, patternIDs(loaded.Patterns))

	overflow, err := st.ListOverflow(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, overflow, 1)
	assert.Equal(t, "p0", overflow[0].RecordID)
}

func TestWriteDemotionPriority(t *testing.T) {
	tests := []struct {
		name     string
		patterns []kb.Pattern
		want     []string
	}{
		{
			name: "history before oldest accepted",
			patterns: []kb.Pattern{
				pattern("old", 0, kb.StatusAccepted),
				pattern("stale", 5, kb.StatusDeprecated),
				pattern("new", 6, kb.StatusAccepted),
			},
			want: []string{"old", "new"},
		},
		{
			name: "conflicted records stay visible",
			patterns: []kb.Pattern{
				pattern("disputed", 0, kb.StatusConflicted),
				pattern("mid", 3, kb.StatusAccepted),
				pattern("new", 6, kb.StatusAccepted),
			},
			want: []string{"disputed", "new"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(nil, WithCeiling(2), WithDryRun(true))
			entry := kb.NewEntry("beta", "Beta topic")
			entry.Patterns = tt.patterns

			res, err := w.Write(context.Background(), entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, patternIDs(res.Entry.Patterns))
		})
	}
}

func TestWriteEntryCeilingOverridesDefault(t *testing.T) {
	w := New(nil, WithCeiling(1), WithDryRun(true))
	entry := kb.NewEntry("beta", "Beta topic")
	entry.Ceiling = 3
	entry.Patterns = []kb.Pattern{
		pattern("a", 0, kb.StatusAccepted),
		pattern("b", 1, kb.StatusAccepted),
		pattern("c", 2, kb.StatusAccepted),
	}

	res, err := w.Write(context.Background(), entry)
	require.NoError(t, err)
	assert.Len(t, res.Entry.Patterns, 3)
	assert.Empty(t, res.Overflow)
}

func TestWriteDryRunPersistsNothing(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	dir := t.TempDir()
	w := New(st, WithDryRun(true), WithSkillsDir(dir), WithCeiling(1))

	entry := kb.NewEntry("beta", "Beta topic")
	entry.Patterns = []kb.Pattern{pattern("a", 0, kb.StatusAccepted), pattern("b", 1, kb.StatusAccepted)}

	res, err := w.Write(ctx, entry)
	require.NoError(t, err)
	assert.Len(t, res.Overflow, 1, "demotions are still planned")
	assert.Empty(t, res.Files)

	_, err = st.GetEntry(ctx, "beta")
	assert.True(t, kb.IsNotFound(err))
	_, err = os.Stat(filepath.Join(dir, "beta"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteRendersEntryDirectory(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	dir := t.TempDir()
	w := New(st, WithSkillsDir(dir), WithCeiling(1), WithClock(fixedClock))

	entry := kb.NewEntry("beta", "Beta topic")
	entry.Keywords = []string{"list", "lazyvstack"}
	entry.Patterns = []kb.Pattern{pattern("a", 0, kb.StatusAccepted), pattern("b", 1, kb.StatusAccepted)}

	res, err := w.Write(ctx, entry)
	require.NoError(t, err)

	skillPath := filepath.Join(dir, "beta", skills.FileName)
	overflowPath := filepath.Join(dir, "beta", filepath.FromSlash(render.OverflowFile))
	assert.Equal(t, []string{skillPath, overflowPath}, res.Files)

	skill, err := skills.LoadFile(skillPath)
	require.NoError(t, err)
	assert.Equal(t, "beta", skill.Name)
	assert.Equal(t, "Beta topic", skill.Description)
	assert.Equal(t, []string{"list", "lazyvstack"}, skill.Keywords)
	assert.Contains(t, skill.Content, "let b = 1")
	assert.NotContains(t, skill.Content, "let a = 1")

	overflow, err := os.ReadFile(overflowPath)
	require.NoError(t, err)
	assert.Contains(t, string(overflow), "Pattern a")
	assert.Contains(t, string(overflow), "demoted 2025-03-03")
}
