package timeutil

import "time"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a window starting at start and lasting d.
func NewWindow(start time.Time, d time.Duration) Window {
	return Window{Start: start, End: start.Add(d)}
}

// Empty reports whether the window covers no time.
func (w Window) Empty() bool {
	return !w.End.After(w.Start)
}

// Overlaps reports whether the two half-open windows share any instant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Covers reports whether w fully contains other.
func (w Window) Covers(other Window) bool {
	return !w.Start.After(other.Start) && !w.End.Before(other.End)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Clip trims w to the bounds of limit. The result may be empty.
func (w Window) Clip(limit Window) Window {
	out := w
	if out.Start.Before(limit.Start) {
		out.Start = limit.Start
	}
	if out.End.After(limit.End) {
		out.End = limit.End
	}
	return out
}
