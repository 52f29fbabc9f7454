package selector

import (
	"time"

	"go.lipi.dev/providerd/probe"
	"go.lipi.dev/providerd/registry"
	"go.lipi.dev/providerd/scorer"
)

// Filter is an optional capability requirement plus a score floor
type Filter struct {
	Capability string `json:"capability,omitempty"`

	// MinScore drops candidates scoring below it; zero disables it.
	MinScore float64 `json:"min_score,omitempty"`
}

// Active reports whether a capability is required.
func (f Filter) Active() bool {
	return f.Capability != ""
}

// Match reports whether d satisfies the filter. An inactive filter
// matches everything.
func (f Filter) Match(d registry.Descriptor) bool {
	return !f.Active() || d.HasCapability(f.Capability)
}

// Candidate is one endpoint of a scan batch
type Candidate struct {
	Descriptor registry.Descriptor
	Result     probe.Result
	Score      scorer.Score
	Position   int // registration order
}

// Selection is the current answer to "which endpoint is active". The
// zero value means no provider is available.
type Selection struct {
	DescriptorID string               `json:"descriptor_id,omitempty"`
	Descriptor   *registry.Descriptor `json:"descriptor,omitempty"`
	Score        scorer.Score         `json:"score"`
	Result       probe.Result         `json:"result"`
	Filter       Filter               `json:"filter"`
	Generation   uint64               `json:"generation"`
	SelectedAt   time.Time            `json:"selected_at"`

	// ValidatedAt is the time of the most recent reachable probe that
	// confirmed the selection.
	ValidatedAt time.Time `json:"validated_at"`
}

// Active is false when no provider is available.
func (s Selection) Active() bool {
	return s.DescriptorID != ""
}

// Refresh returns a copy of s carrying a newer probe result and score for
// the same descriptor. The generation is unchanged.
func (s Selection) Refresh(r probe.Result, sc scorer.Score) Selection {
	s.Result = r
	s.Score = sc
	s.ValidatedAt = r.Timestamp
	return s
}
