package displays

import "time"

// Display is a physical output the matrix can route a source to.
type Display struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name"`
	Zone string `json:"zone,omitempty" yaml:"zone"`
}

// ManualOverride marks a display an operator tuned by hand.
// The scheduler leaves the display alone until ManualOverrideUntil.
type ManualOverride struct {
	DisplayID           string    `json:"displayId"`
	ManualOverrideUntil time.Time `json:"manualOverrideUntil"`
	LastManualChangeBy  string    `json:"lastManualChangeBy,omitempty"`
	LastManualChangeAt  time.Time `json:"lastManualChangeAt"`
}

// ActiveAt reports whether the override still guards the display at now.
func (o ManualOverride) ActiveAt(now time.Time) bool {
	return now.Before(o.ManualOverrideUntil)
}

// OverridesResponse is the payload returned by GET /overrides.
type OverridesResponse struct {
	Overrides []ManualOverride `json:"overrides"`
	Count     int              `json:"count"`
}

// NewOverridesResponse builds an OverridesResponse payload.
func NewOverridesResponse(list []ManualOverride) OverridesResponse {
	if list == nil {
		list = []ManualOverride{}
	}
	return OverridesResponse{Overrides: list, Count: len(list)}
}
