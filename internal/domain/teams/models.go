package teams

import "strings"

// Team identifies one side of a game.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName prefers the name and falls back to the id.
func (t Team) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// Preference is a team the venue cares about.
type Preference struct {
	Name               string   `json:"name" yaml:"name"`
	Aliases            []string `json:"aliases,omitempty" yaml:"aliases"`
	BasePriority       int      `json:"basePriority" yaml:"priority"`
	MinDisplays        int      `json:"minDisplays" yaml:"min_displays"`
	AutoPromotePlayoff bool     `json:"autoPromotePlayoff" yaml:"auto_promote_playoffs"`
	Rivals             []string `json:"rivals,omitempty" yaml:"rivals"`
	PreferredZones     []string `json:"preferredZones,omitempty" yaml:"zones"`
}

// Matches reports whether the team is this preference by id, name, or alias.
// Comparison is exact after case folding; fuzzy matching happens upstream.
func (p Preference) Matches(team Team) bool {
	for _, candidate := range p.names() {
		if candidate == "" {
			continue
		}
		if strings.EqualFold(candidate, team.Name) || strings.EqualFold(candidate, team.ID) {
			return true
		}
	}
	return false
}

// IsRival reports whether the team is listed as one of this preference's rivals.
func (p Preference) IsRival(team Team) bool {
	for _, rival := range p.Rivals {
		if strings.EqualFold(rival, team.Name) || strings.EqualFold(rival, team.ID) {
			return true
		}
	}
	return false
}

func (p Preference) names() []string {
	return append([]string{p.Name}, p.Aliases...)
}
