package allocations

import (
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/timeutil"
)

// Status is the lifecycle state of an allocation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPreempted Status = "preempted"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPreempted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsHolding reports whether the allocation still claims its source.
func (s Status) IsHolding() bool {
	return s == StatusPending || s == StatusActive
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusPreempted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Quality rates how well the binding satisfies the game's display and network needs.
type Quality string

const (
	QualityOptimal    Quality = "optimal"
	QualitySuboptimal Quality = "suboptimal"
	QualityDegraded   Quality = "degraded"
)

// Allocation binds one input source to one game and a set of display outputs.
type Allocation struct {
	ID                      string       `json:"id"`
	SourceID                string       `json:"sourceId"`
	SourceType              sources.Type `json:"sourceType"`
	GameID                  string       `json:"gameId"`
	Network                 string       `json:"network,omitempty"`
	Channel                 string       `json:"channel"`
	Displays                []string     `json:"displays"`
	DisplayCount            int          `json:"displayCount"`
	Priority                int          `json:"priority"`
	AllocatedAt             time.Time    `json:"allocatedAt"`
	ExpectedFreeAt          time.Time    `json:"expectedFreeAt"`
	ActuallyFreedAt         *time.Time   `json:"actuallyFreedAt,omitempty"`
	Status                  Status       `json:"status"`
	PreemptedByAllocationID string       `json:"preemptedByAllocationId,omitempty"`
	Reason                  string       `json:"reason,omitempty"`
	Quality                 Quality      `json:"quality"`
}

// Window returns the interval during which the allocation expects to hold its source.
func (a Allocation) Window() timeutil.Window {
	return timeutil.Window{Start: a.AllocatedAt, End: a.ExpectedFreeAt}
}

// SetDisplays replaces the display list and keeps the count in sync.
func (a *Allocation) SetDisplays(displays []string) {
	a.Displays = append([]string(nil), displays...)
	a.DisplayCount = len(a.Displays)
}

// Clone returns a deep copy safe to hand to callers.
func (a Allocation) Clone() Allocation {
	out := a
	out.Displays = append([]string(nil), a.Displays...)
	if a.ActuallyFreedAt != nil {
		freed := *a.ActuallyFreedAt
		out.ActuallyFreedAt = &freed
	}
	return out
}

// AllocationsResponse is the payload returned by GET /allocations.
type AllocationsResponse struct {
	Allocations []Allocation `json:"allocations"`
	Count       int          `json:"count"`
}

// NewAllocationsResponse builds an AllocationsResponse payload.
func NewAllocationsResponse(list []Allocation) AllocationsResponse {
	if list == nil {
		list = []Allocation{}
	}
	return AllocationsResponse{Allocations: list, Count: len(list)}
}
