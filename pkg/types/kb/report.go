package kb

import (
	"sync"
	"time"
)

// Action is the per-entry outcome of a run.
type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionNone    Action = "NONE"
)

// ChangeKind classifies a single change line.
type ChangeKind string

const (
	ChangeAdded       ChangeKind = "added"
	ChangeDuplicate   ChangeKind = "duplicate"
	ChangeSuperseded  ChangeKind = "superseded"
	ChangeDeprecated  ChangeKind = "deprecated"
	ChangeConflicted  ChangeKind = "conflicted"
	ChangeRejected    ChangeKind = "rejected"
	ChangeDemoted     ChangeKind = "demoted"
	ChangeNeedsReview ChangeKind = "needs_review"
	ChangeFailed      ChangeKind = "failed"
)

// Change is one (entry, action, detail) line of a report.
type Change struct {
	Entry    string     `json:"entry" db:"entry"`
	Kind     ChangeKind `json:"kind" db:"kind"`
	Section  Section    `json:"section,omitempty" db:"section"`
	RecordID string     `json:"record_id,omitempty" db:"record_id"`
	Document string     `json:"document,omitempty" db:"document"`
	Detail   string     `json:"detail" db:"detail"`
}

// EntryChange is the per-entry summary row of a report.
type EntryChange struct {
	Entry  string `json:"entry" db:"entry"`
	Action Action `json:"action" db:"action"`
}

// UnresolvedDocument is a document that could not be routed to any entry.
type UnresolvedDocument struct {
	Document string `json:"document" db:"document"`
	Reason   string `json:"reason" db:"reason"`
}

// ChangeReport is the append-only log of one pipeline run. It is safe for
// concurrent appends from per-entry workers.
type ChangeReport struct {
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	DryRun     bool                 `json:"dry_run"`
	Documents  int                  `json:"documents"`
	Entries    []EntryChange        `json:"entries"`
	Changes    []Change             `json:"changes"`
	Unresolved []UnresolvedDocument `json:"unresolved"`

	mu sync.Mutex
}

// NewChangeReport starts an empty report for a run.
func NewChangeReport(runID string, startedAt time.Time) *ChangeReport {
	return &ChangeReport{
		RunID:     runID,
		StartedAt: startedAt,
	}
}

// Append adds changes to the log.
func (r *ChangeReport) Append(changes ...Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Changes = append(r.Changes, changes...)
}

// SetAction records the outcome of an entry. Later calls for the same
// entry only ever escalate NONE to UPDATED or CREATED.
func (r *ChangeReport) SetAction(entry string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Entries {
		if r.Entries[i].Entry != entry {
			continue
		}
		if r.Entries[i].Action == ActionNone || action == ActionCreated {
			r.Entries[i].Action = action
		}
		return
	}
	r.Entries = append(r.Entries, EntryChange{Entry: entry, Action: action})
}

// AddUnresolved records a document that classified nowhere.
func (r *ChangeReport) AddUnresolved(doc, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unresolved = append(r.Unresolved, UnresolvedDocument{Document: doc, Reason: reason})
}

// Action returns the recorded action for an entry, or NONE.
func (r *ChangeReport) Action(entry string) Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Entries {
		if e.Entry == entry {
			return e.Action
		}
	}
	return ActionNone
}

// ChangesOfKind returns every change of the given kind, in order.
func (r *ChangeReport) ChangesOfKind(kind ChangeKind) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Change
	for _, c := range r.Changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// RunSummary is the listing view of a persisted report.
type RunSummary struct {
	RunID      string    `json:"run_id" db:"id"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	DryRun     bool      `json:"dry_run" db:"dry_run"`
	Documents  int       `json:"documents" db:"documents"`
	Changes    int       `json:"changes" db:"changes"`
}
