package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleVenue = `
name: The Tap Room
premium_networks: [espn, nfl network]
teams:
  - name: Packers
    aliases: [Green Bay]
    priority: 90
    min_displays: 2
    auto_promote_playoffs: true
    rivals: [Bears]
    zones: [main]
sources:
  - id: cable-1
    type: cable
    priority_rank: 2
    channels:
      fox: "11"
      espn: "32"
  - id: firetv-1
    type: firetv
    active: false
    channels:
      ESPN+: espnplus
displays:
  - id: tv-1
    zone: main
  - id: tv-2
    zone: main
`

func TestParseVenue(t *testing.T) {
	v, err := ParseVenue([]byte(sampleVenue))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Name != "The Tap Room" || len(v.Teams) != 1 || len(v.Sources) != 2 || len(v.Displays) != 2 {
		t.Fatalf("unexpected venue %+v", v)
	}
	p := v.Teams[0]
	if p.BasePriority != 90 || p.MinDisplays != 2 || !p.AutoPromotePlayoff || p.Rivals[0] != "Bears" || p.PreferredZones[0] != "main" {
		t.Fatalf("unexpected preference %+v", p)
	}
	cable := v.Sources[0]
	if !cable.IsActive || cable.Channels["FOX"] != "11" || cable.PriorityRank != 2 {
		t.Fatalf("expected normalized active cable box, got %+v", cable)
	}
	if v.Sources[1].IsActive {
		t.Fatalf("expected explicit active=false to be kept")
	}
	if v.PremiumNetworks[1] != "NFL NETWORK" {
		t.Fatalf("expected upper-cased premium networks, got %v", v.PremiumNetworks)
	}
}

func TestParseVenueRejectsInvalidInventory(t *testing.T) {
	bad := `
sources:
  - id: a
    type: cable
  - id: a
    type: vcr
displays:
  - id: ""
teams:
  - name: ""
`
	_, err := ParseVenue([]byte(bad))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"duplicate id", "unknown type", "display 0", "team 0"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestParseVenueRejectsMalformedYAML(t *testing.T) {
	if _, err := ParseVenue([]byte("teams: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadVenueFromFileAndDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venue.yaml")
	if err := os.WriteFile(path, []byte(sampleVenue), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := LoadVenue(path)
	if err != nil || v.Name != "The Tap Room" {
		t.Fatalf("expected venue from file, got %+v err=%v", v, err)
	}

	def, err := LoadVenue("")
	if err != nil || len(def.Sources) == 0 || len(def.Displays) == 0 {
		t.Fatalf("expected default venue, got %+v err=%v", def, err)
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("default venue invalid: %v", err)
	}

	if _, err := LoadVenue(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
