package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/displays"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
	"github.com/preston-bernstein/venue-scheduler/internal/domain/teams"
)

// Venue is the static inventory of a bar: what it cares about, what it can
// tune, and where it can show it.
type Venue struct {
	Name            string
	Teams           []teams.Preference
	Sources         []sources.InputSource
	Displays        []displays.Display
	PremiumNetworks []string
}

type venueFile struct {
	Name            string             `yaml:"name"`
	Teams           []teams.Preference `yaml:"teams"`
	Sources         []sourceFile       `yaml:"sources"`
	Displays        []displays.Display `yaml:"displays"`
	PremiumNetworks []string           `yaml:"premium_networks"`
}

type sourceFile struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Type     sources.Type      `yaml:"type"`
	Channels map[string]string `yaml:"channels"`
	Rank     int               `yaml:"priority_rank"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

// DefaultVenue is used when no venue file is configured: three sources and
// four displays that cover the fixture feed.
func DefaultVenue() Venue {
	return Venue{
		Name: "demo",
		Teams: []teams.Preference{
			{Name: "Packers", BasePriority: 90, MinDisplays: 2, AutoPromotePlayoff: true, Rivals: []string{"Bears"}, PreferredZones: []string{"main"}},
			{Name: "Bucks", BasePriority: 60, MinDisplays: 1},
		},
		Sources: []sources.InputSource{
			{ID: "cable-1", Name: "Cable box 1", Type: sources.TypeCable, PriorityRank: 3, IsActive: true,
				Channels: map[string]string{"FOX": "11", "CBS": "3", "NBC": "5", "ESPN": "32", "TNT": "47"}},
			{ID: "cable-2", Name: "Cable box 2", Type: sources.TypeCable, PriorityRank: 2, IsActive: true,
				Channels: map[string]string{"FOX": "11", "CBS": "3", "ESPN": "32"}},
			{ID: "firetv-1", Name: "Fire TV", Type: sources.TypeFireTV, PriorityRank: 1, IsActive: true,
				Channels: map[string]string{"ESPN+": "espnplus", "PEACOCK": "peacock"}},
		},
		Displays: []displays.Display{
			{ID: "tv-main-1", Name: "Main bar left", Zone: "main"},
			{ID: "tv-main-2", Name: "Main bar right", Zone: "main"},
			{ID: "tv-patio-1", Name: "Patio", Zone: "patio"},
			{ID: "tv-booth-1", Name: "Booths", Zone: "booths"},
		},
	}
}

// LoadVenue reads a venue YAML file. An empty path yields DefaultVenue.
func LoadVenue(path string) (Venue, error) {
	if path == "" {
		return DefaultVenue(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Venue{}, fmt.Errorf("failed to read venue file: %w", err)
	}
	return ParseVenue(data)
}

// ParseVenue decodes and validates venue YAML.
func ParseVenue(data []byte) (Venue, error) {
	var raw venueFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Venue{}, fmt.Errorf("failed to parse venue file: %w", err)
	}

	v := Venue{
		Name:     raw.Name,
		Teams:    raw.Teams,
		Displays: raw.Displays,
	}
	for _, n := range raw.PremiumNetworks {
		v.PremiumNetworks = append(v.PremiumNetworks, normalizeNetwork(n))
	}
	for _, s := range raw.Sources {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		channels := make(map[string]string, len(s.Channels))
		for network, channel := range s.Channels {
			channels[normalizeNetwork(network)] = strings.TrimSpace(channel)
		}
		v.Sources = append(v.Sources, sources.InputSource{
			ID:           s.ID,
			Name:         s.Name,
			Type:         s.Type,
			Channels:     channels,
			PriorityRank: s.Rank,
			IsActive:     active,
		})
	}

	if err := v.Validate(); err != nil {
		return Venue{}, fmt.Errorf("invalid venue: %w", err)
	}
	return v, nil
}

// Validate checks ids are present and unique and types are known.
func (v Venue) Validate() error {
	var errs []error

	seen := map[string]bool{}
	for i, s := range v.Sources {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("source %d: id is required", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("source %s: duplicate id", s.ID))
		}
		seen[s.ID] = true
		switch s.Type {
		case sources.TypeCable, sources.TypeSatellite, sources.TypeFireTV, sources.TypeStream:
		default:
			errs = append(errs, fmt.Errorf("source %s: unknown type %q", s.ID, s.Type))
		}
	}

	seen = map[string]bool{}
	for i, d := range v.Displays {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Errorf("display %d: id is required", i))
		case seen[d.ID]:
			errs = append(errs, fmt.Errorf("display %s: duplicate id", d.ID))
		}
		seen[d.ID] = true
	}

	for i, t := range v.Teams {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("team %d: name is required", i))
		}
		if t.MinDisplays < 0 || (len(v.Displays) > 0 && t.MinDisplays > len(v.Displays)) {
			errs = append(errs, fmt.Errorf("team %s: min_displays %d out of range", t.Name, t.MinDisplays))
		}
	}
	return errors.Join(errs...)
}

// normalizeNetwork matches the feed's upper-case network names.
func normalizeNetwork(n string) string {
	return strings.ToUpper(strings.TrimSpace(n))
}
