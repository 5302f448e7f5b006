package logging

import "log/slog"

// Common structured log field keys to keep logs searchable/consistent.
const (
	FieldService      = "service"
	FieldVersion      = "version"
	FieldFeed         = "feed"
	FieldRequestID    = "request_id"
	FieldPath         = "path"
	FieldMethod       = "method"
	FieldStatusCode   = "status_code"
	FieldCount        = "count"
	FieldDurationMS   = "duration_ms"
	FieldGameID       = "game_id"
	FieldSourceID     = "source_id"
	FieldAllocationID = "allocation_id"
	FieldDisplayID    = "display_id"
	FieldPriority     = "priority"
	FieldStatus       = "status"
	FieldReason       = "reason"
	FieldAttempt      = "attempt"
	FieldError        = "error"
	FieldSeverity     = "severity"
)

// WithCommon appends service/version fields when provided.
func WithCommon(attrs []slog.Attr, service, version string) []slog.Attr {
	if service != "" {
		attrs = append(attrs, slog.String(FieldService, service))
	}
	if version != "" {
		attrs = append(attrs, slog.String(FieldVersion, version))
	}
	return attrs
}
