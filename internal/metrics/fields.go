package metrics

// Common metric attribute keys to keep telemetry consistent/searchable.
const (
	AttrMethod     = "method"
	AttrPath       = "path"
	AttrStatus     = "status"
	AttrFeed       = "feed"
	AttrEvent      = "event"
	AttrSourceType = "source_type"
	AttrSeverity   = "severity"
	AttrOutcome    = "outcome"
)

// Allocation lifecycle events counted by RecordAllocationEvent.
const (
	EventCreated   = "created"
	EventActivated = "activated"
	EventCompleted = "completed"
	EventPreempted = "preempted"
	EventCancelled = "cancelled"
	EventRollback  = "rollback"
	EventExtended  = "extended"
)
