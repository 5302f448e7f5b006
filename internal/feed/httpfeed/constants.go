package httpfeed

import "time"

const (
	// Name identifies the HTTP feed in logs and metrics.
	Name = "http"

	defaultPerPage     = 100
	defaultHTTPTimeout = 10 * time.Second
	defaultMaxPages    = 5
	defaultGameLength  = 3 * time.Hour
)
