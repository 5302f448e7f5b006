package engine

import "time"

// TickReport summarises the decisions made by one tick.
type TickReport struct {
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"durationNs"`
	Considered  int           `json:"considered"`
	Retained    int           `json:"retained"`
	Created     int           `json:"created"`
	Activated   int           `json:"activated"`
	Preempted   int           `json:"preempted"`
	Completed   int           `json:"completed"`
	Cancelled   int           `json:"cancelled"`
	Extended    int           `json:"extended"`
	RolledBack  int           `json:"rolledBack"`
	Unallocated []string      `json:"unallocated"`
	Errors      int           `json:"errors"`
	StaleData   bool          `json:"staleData,omitempty"`
}

// ReconcileReport summarises startup reconciliation.
type ReconcileReport struct {
	Discarded []string `json:"discarded"`
	Restored  []string `json:"restored"`
	Orphaned  []string `json:"orphaned"`
}
