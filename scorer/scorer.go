// Package scorer turns probe results into comparable scores.
//
// Reachable endpoints score between 0 and 100; everything else gets the
// Ineligible sentinel which sorts below any reachable endpoint. Scoring
// is a pure function of the configuration, the descriptor and the probe
// result.
package scorer

import (
	"go.lipi.dev/providerd/probe"
	"go.lipi.dev/providerd/registry"
)

// Ineligible is the score of an endpoint whose last probe was not
// reachable.
const Ineligible = -1.0

// Score is derived from one probe result and is recomputed with every
// new result.
type Score struct {
	DescriptorID string     `json:"descriptor_id"`
	Value        float64    `json:"value"`
	Eligible     bool       `json:"eligible"`
	Terms        Components `json:"terms"`
}

// Components are the normalized (0..1) score terms, kept for display.
// Terms that were not scored are zero.
type Components struct {
	Latency    float64 `json:"latency"`
	Throughput float64 `json:"throughput,omitempty"`
	Accuracy   float64 `json:"accuracy,omitempty"`
	Affinity   float64 `json:"affinity,omitempty"`
	Capability float64 `json:"capability,omitempty"`
}

type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.WithDefaults()}
}

func (s *Scorer) Config() Config {
	return s.cfg
}

func (s *Scorer) Score(d registry.Descriptor, r probe.Result) Score {
	return Compute(s.cfg, d, r)
}

// Compute scores r for d. Endpoints with a performance sample are scored
// on latency, throughput, accuracy, domain affinity and capability
// match; without a sample only latency and capability match count.
func Compute(cfg Config, d registry.Descriptor, r probe.Result) Score {
	sc := Score{DescriptorID: d.ID, Value: Ineligible}
	if !r.Reachable() {
		return sc
	}
	cfg = cfg.WithDefaults()
	w := cfg.Weights

	var sum, weights float64
	add := func(weight, term float64) {
		if weight <= 0 {
			return
		}
		sum += weight * term
		weights += weight
	}

	sc.Terms.Latency = latencyTerm(cfg, r)
	add(w.Latency, sc.Terms.Latency)

	if len(cfg.PreferredCapabilities) > 0 {
		sc.Terms.Capability = capabilityTerm(cfg, d)
		add(w.Capability, sc.Terms.Capability)
	}

	if r.Sample != nil {
		if t := r.Sample.Throughput; t > 0 {
			sc.Terms.Throughput = t / (t + cfg.ThroughputRef)
		}
		add(w.Throughput, sc.Terms.Throughput)

		sc.Terms.Accuracy = clamp(r.Sample.Accuracy)
		add(w.Accuracy, sc.Terms.Accuracy)

		if cfg.Domain != "" {
			sc.Terms.Affinity = clamp(d.Affinity[cfg.Domain])
			add(w.Affinity, sc.Terms.Affinity)
		}
	}

	sc.Eligible = true
	sc.Value = 0
	if weights > 0 {
		sc.Value = 100 * sum / weights
	}
	return sc
}

func latencyTerm(cfg Config, r probe.Result) float64 {
	if r.Latency <= 0 {
		return 1
	}
	return 1 / (1 + float64(r.Latency)/float64(cfg.LatencyRef))
}

func capabilityTerm(cfg Config, d registry.Descriptor) float64 {
	matched := 0
	for _, c := range cfg.PreferredCapabilities {
		if d.HasCapability(c) {
			matched++
		}
	}
	return float64(matched) / float64(len(cfg.PreferredCapabilities))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
