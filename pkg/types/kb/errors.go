package kb

import "github.com/pkg/errors"

var (
	// ErrUnclassifiable marks a document no entry scored above threshold for.
	ErrUnclassifiable = errors.New("unclassifiable document")
	// ErrMissingRequiredField marks a record without version tag or source.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrConflicting marks two contradictory records on the same subject.
	ErrConflicting = errors.New("conflicting records")
	// ErrOverflow marks a section that exceeded its ceiling.
	ErrOverflow = errors.New("section ceiling exceeded")
	// ErrEntryNotFound is returned by stores for unknown entries.
	ErrEntryNotFound = errors.New("entry not found")
)

// IsNotFound reports whether err wraps ErrEntryNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
