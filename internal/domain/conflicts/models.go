package conflicts

import "time"

// Severity grades how urgently a conflict needs operator attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// CollidingGame is one game competing for sources inside a conflict window.
type CollidingGame struct {
	GameID         string    `json:"gameId"`
	Matchup        string    `json:"matchup"`
	Priority       int       `json:"priority"`
	IsPriorityGame bool      `json:"isPriorityGame"`
	ScheduledStart time.Time `json:"scheduledStart"`
	Excess         bool      `json:"excess"`
}

// SchedulingConflict is a derived report of a window where demand exceeds supply.
type SchedulingConflict struct {
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	RequiredInputs  int             `json:"requiredInputs"`
	AvailableInputs int             `json:"availableInputs"`
	Games           []CollidingGame `json:"games"`
	Severity        Severity        `json:"severity"`
	Recommendations []string        `json:"recommendations"`
	CanBeResolved   bool            `json:"canBeResolved"`
}

// Shortfall is the number of sources missing in the window.
func (c SchedulingConflict) Shortfall() int {
	if c.RequiredInputs <= c.AvailableInputs {
		return 0
	}
	return c.RequiredInputs - c.AvailableInputs
}

// Report is the payload returned by GET /conflicts.
type Report struct {
	Conflicts         []SchedulingConflict `json:"conflicts"`
	TotalConflicts    int                  `json:"totalConflicts"`
	CriticalConflicts int                  `json:"criticalConflicts"`
	GeneratedAt       time.Time            `json:"generatedAt"`
	LookAheadHours    int                  `json:"lookAheadHours"`
	StaleData         bool                 `json:"staleData,omitempty"`
}

// NewReport builds a Report and its summary counters.
func NewReport(list []SchedulingConflict, generatedAt time.Time, lookAheadHours int) Report {
	if list == nil {
		list = []SchedulingConflict{}
	}
	critical := 0
	for _, c := range list {
		if c.Severity == SeverityCritical {
			critical++
		}
	}
	return Report{
		Conflicts:         list,
		TotalConflicts:    len(list),
		CriticalConflicts: critical,
		GeneratedAt:       generatedAt,
		LookAheadHours:    lookAheadHours,
	}
}
