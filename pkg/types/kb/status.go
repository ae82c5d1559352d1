package kb

import "github.com/pkg/errors"

// Status is the lifecycle state of a record.
type Status string

const (
	StatusProposed   Status = "proposed"
	StatusAccepted   Status = "accepted"
	StatusSuperseded Status = "superseded"
	StatusDeprecated Status = "deprecated"
	StatusConflicted Status = "conflicted"
)

var transitions = map[Status][]Status{
	StatusProposed:   {StatusAccepted, StatusConflicted, StatusSuperseded, StatusDeprecated},
	StatusAccepted:   {StatusSuperseded, StatusDeprecated, StatusConflicted},
	StatusConflicted: {StatusSuperseded, StatusAccepted},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves *s to the target status, failing on an illegal move.
// Moving to the current status is a no-op.
func Transition(s *Status, to Status) error {
	if *s == to {
		return nil
	}
	if !CanTransition(*s, to) {
		return errors.Errorf("illegal status transition %s -> %s", *s, to)
	}
	*s = to
	return nil
}

// Active reports whether the record is still in force. Superseded and
// deprecated records are history only.
func (s Status) Active() bool {
	return s == StatusAccepted || s == StatusConflicted || s == StatusProposed
}
