package sources

import "sort"

// Type classifies an input source.
type Type string

const (
	TypeCable     Type = "cable"
	TypeSatellite Type = "satellite"
	TypeFireTV    Type = "firetv"
	TypeStream    Type = "stream"
)

// InputSource is a controllable tuner or streaming device.
// Channels maps each carried network/app to the identifier used to tune it;
// the key set is the source's capability set.
type InputSource struct {
	ID                 string            `json:"id" yaml:"id"`
	Name               string            `json:"name,omitempty" yaml:"name"`
	Type               Type              `json:"type" yaml:"type"`
	Channels           map[string]string `json:"channels,omitempty" yaml:"channels"`
	PriorityRank       int               `json:"priorityRank" yaml:"priority_rank"`
	IsActive           bool              `json:"isActive" yaml:"active"`
	CurrentlyAllocated bool              `json:"currentlyAllocated" yaml:"-"`
	AllocatedGameID    string            `json:"allocatedGameId,omitempty" yaml:"-"`
}

// Capabilities returns the sorted capability set.
func (s InputSource) Capabilities() []string {
	caps := make([]string, 0, len(s.Channels))
	for name := range s.Channels {
		caps = append(caps, name)
	}
	sort.Strings(caps)
	return caps
}

// Supports reports whether every need is in the capability set.
func (s InputSource) Supports(needs []string) bool {
	for _, need := range needs {
		if _, ok := s.Channels[need]; !ok {
			return false
		}
	}
	return true
}

// CanServe reports whether the source carries at least one of the alternatives.
// An empty alternative list can be served by any source.
func (s InputSource) CanServe(alternatives []string) bool {
	_, ok := s.Tuning(alternatives)
	return ok
}

// Tuning returns the first network from alternatives the source carries,
// along with the channel or app identifier to tune it.
func (s InputSource) Tuning(alternatives []string) (Tuning, bool) {
	if len(alternatives) == 0 {
		return Tuning{}, true
	}
	for _, network := range alternatives {
		if channel, ok := s.Channels[network]; ok {
			if channel == "" {
				channel = network
			}
			return Tuning{Network: network, Channel: channel}, true
		}
	}
	return Tuning{}, false
}

// Tuning names the network a source will show and how to select it.
type Tuning struct {
	Network string
	Channel string
}

// ByRank orders sources by descending PriorityRank then ascending ID.
func ByRank(list []InputSource) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].PriorityRank != list[j].PriorityRank {
			return list[i].PriorityRank > list[j].PriorityRank
		}
		return list[i].ID < list[j].ID
	})
}

// SourcesResponse is the payload returned by GET /sources.
type SourcesResponse struct {
	Sources []InputSource `json:"sources"`
	Count   int           `json:"count"`
}

// NewSourcesResponse builds a SourcesResponse payload.
func NewSourcesResponse(list []InputSource) SourcesResponse {
	if list == nil {
		list = []InputSource{}
	}
	return SourcesResponse{Sources: list, Count: len(list)}
}
