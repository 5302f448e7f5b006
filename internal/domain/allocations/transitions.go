package allocations

import (
	"errors"
	"fmt"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled, StatusPreempted},
	StatusActive:  {StatusCompleted, StatusPreempted},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// Terminal states accept nothing.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted illegal lifecycle move.
type InvalidTransitionError struct {
	AllocationID string
	From         Status
	To           Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("allocation %s: %s is terminal", e.AllocationID, e.From)
	}
	return fmt.Sprintf("allocation %s: invalid transition %s -> %s", e.AllocationID, e.From, e.To)
}

// AsInvalidTransition attempts to unwrap an error into an InvalidTransitionError.
func AsInvalidTransition(err error) (*InvalidTransitionError, bool) {
	var target *InvalidTransitionError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
