package kb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcesUnion(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	a := Sources{{Document: "a.md", Time: t1}}
	b := Sources{{Document: "b.md", Time: t2}, {Document: "a.md", Time: t1}}

	merged := a.Union(b)
	assert.Equal(t, []string{"a.md", "b.md"}, merged.Documents())
	assert.Equal(t, t2, merged.Latest())

	t.Run("idempotent", func(t *testing.T) {
		again := merged.Union(b)
		assert.Equal(t, merged, again)
	})

	t.Run("keeps newest time for same document", func(t *testing.T) {
		updated := a.Union(Sources{{Document: "a.md", Time: t2}})
		require.Len(t, updated, 1)
		assert.Equal(t, t2, updated[0].Time)
	})
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"proposed to accepted", StatusProposed, StatusAccepted, false},
		{"proposed to conflicted", StatusProposed, StatusConflicted, false},
		{"accepted to superseded", StatusAccepted, StatusSuperseded, false},
		{"accepted to deprecated", StatusAccepted, StatusDeprecated, false},
		{"conflicted to superseded", StatusConflicted, StatusSuperseded, false},
		{"same status is a no-op", StatusAccepted, StatusAccepted, false},
		{"superseded is terminal", StatusSuperseded, StatusAccepted, true},
		{"deprecated is terminal", StatusDeprecated, StatusAccepted, true},
		{"accepted cannot go back to proposed", StatusAccepted, StatusProposed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.from
			err := Transition(&s, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.from, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, s)
		})
	}
}

func TestEntryClone(t *testing.T) {
	e := NewEntry("alpha", "Alpha skill")
	e.Patterns = []Pattern{{ID: "p1", Code: "x", Sources: Sources{{Document: "a.md"}}}}

	c := e.Clone()
	c.Patterns[0].Sources = append(c.Patterns[0].Sources, Source{Document: "b.md"})
	c.Patterns = append(c.Patterns, Pattern{ID: "p2"})

	assert.Len(t, e.Patterns, 1)
	assert.Len(t, e.Patterns[0].Sources, 1)
	assert.Equal(t, 2, c.Count(SectionPatterns))
}

func TestChangeReportSetAction(t *testing.T) {
	r := NewChangeReport("run-1", time.Now())

	r.SetAction("alpha", ActionNone)
	assert.Equal(t, ActionNone, r.Action("alpha"))

	r.SetAction("alpha", ActionUpdated)
	assert.Equal(t, ActionUpdated, r.Action("alpha"))

	r.SetAction("alpha", ActionNone)
	assert.Equal(t, ActionUpdated, r.Action("alpha"), "NONE never downgrades a recorded action")

	r.SetAction("alpha", ActionCreated)
	assert.Equal(t, ActionCreated, r.Action("alpha"))

	assert.Equal(t, ActionNone, r.Action("unknown"))
	assert.Len(t, r.Entries, 1)
}

func TestSectionOrder(t *testing.T) {
	assert.Equal(t, []Section{SectionConstraints, SectionDecisionRules, SectionPatterns, SectionReferences}, SectionOrder)
	assert.Equal(t, "Decision Rules", SectionDecisionRules.Title())
	assert.Equal(t, "pattern", SectionPatterns.Singular())
}
