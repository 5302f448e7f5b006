package registry

import (
	"errors"
	"fmt"
)

// SourceNotFoundError reports an unknown source id.
type SourceNotFoundError struct {
	SourceID string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("input source %q not found", e.SourceID)
}

// SourceAlreadyAllocatedError reports a lost compare-and-set on a busy source.
type SourceAlreadyAllocatedError struct {
	SourceID string
	GameID   string
}

func (e *SourceAlreadyAllocatedError) Error() string {
	if e.GameID == "" {
		return fmt.Sprintf("input source %q already allocated", e.SourceID)
	}
	return fmt.Sprintf("input source %q already allocated to game %q", e.SourceID, e.GameID)
}

// IsSourceNotFound reports whether err wraps a SourceNotFoundError.
func IsSourceNotFound(err error) bool {
	var target *SourceNotFoundError
	return errors.As(err, &target)
}

// IsSourceAlreadyAllocated reports whether err wraps a SourceAlreadyAllocatedError.
func IsSourceAlreadyAllocated(err error) bool {
	var target *SourceAlreadyAllocatedError
	return errors.As(err, &target)
}
