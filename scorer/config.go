package scorer

import (
	"errors"
	"time"
)

// Weights are the fixed relative weights of the score terms. Terms that
// don't apply to an endpoint are left out and the remaining weights are
// renormalized.
type Weights struct {
	Latency    float64 `yaml:"latency" json:"latency"`
	Throughput float64 `yaml:"throughput" json:"throughput"`
	Accuracy   float64 `yaml:"accuracy" json:"accuracy"`
	Affinity   float64 `yaml:"affinity" json:"affinity"`
	Capability float64 `yaml:"capability" json:"capability"`
}

type Config struct {
	Weights Weights `yaml:"weights" json:"weights"`

	// LatencyRef is the latency that scores half of the latency term.
	LatencyRef time.Duration `yaml:"latency_ref" json:"latency_ref"`

	// ThroughputRef is the throughput that scores half of the
	// throughput term.
	ThroughputRef float64 `yaml:"throughput_ref" json:"throughput_ref"`

	// Domain selects the affinity entry that is scored, for example
	// "bengali". Empty disables the affinity term.
	Domain string `yaml:"domain" json:"domain"`

	// PreferredCapabilities are scored by the share an endpoint declares.
	// Empty disables the capability term.
	PreferredCapabilities []string `yaml:"preferred_capabilities" json:"preferred_capabilities"`
}

func DefaultWeights() Weights {
	return Weights{
		Latency:    0.35,
		Throughput: 0.25,
		Accuracy:   0.25,
		Affinity:   0.15,
		Capability: 0.10,
	}
}

func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		LatencyRef:    250 * time.Millisecond,
		ThroughputRef: 20,
	}
}

// WithDefaults fills unset (zero or negative) fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Weights == (Weights{}) {
		c.Weights = def.Weights
	}
	if c.LatencyRef <= 0 {
		c.LatencyRef = def.LatencyRef
	}
	if c.ThroughputRef <= 0 {
		c.ThroughputRef = def.ThroughputRef
	}
	return c
}

func (c Config) Validate() error {
	w := c.Weights
	if w.Latency < 0 || w.Throughput < 0 || w.Accuracy < 0 || w.Affinity < 0 || w.Capability < 0 {
		return errors.New("scoring weights must not be negative")
	}
	if w.Latency+w.Throughput+w.Accuracy+w.Affinity+w.Capability == 0 {
		return errors.New("at least one scoring weight must be positive")
	}
	return nil
}
