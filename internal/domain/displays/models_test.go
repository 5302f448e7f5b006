package displays

import (
	"testing"
	"time"
)

func TestManualOverrideActiveAt(t *testing.T) {
	now := time.Date(2024, 1, 14, 18, 0, 0, 0, time.UTC)
	o := ManualOverride{DisplayID: "tv-1", ManualOverrideUntil: now.Add(10 * time.Minute)}

	if !o.ActiveAt(now) {
		t.Fatalf("expected override active before expiry")
	}
	if o.ActiveAt(now.Add(10 * time.Minute)) {
		t.Fatalf("expected override inactive at expiry")
	}
}
