// Package config has the engine configuration and its defaults.
//
// Configuration files are YAML. Keys that are absent keep their default
// value and unknown keys are ignored:
//
//	probe_timeout: 2s
//	scan_deadline: 4s
//	monitor_interval: 15s
//	degradation_threshold: 25
//	scoring:
//	  domain: bengali
//	  preferred_capabilities: [translation]
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"go.lipi.dev/providerd/scorer"
)

const (
	DefaultProbeTimeout         = 3 * time.Second
	DefaultScanDeadline         = 5 * time.Second
	DefaultMonitorInterval      = 30 * time.Second
	DefaultDegradationThreshold = 20.0
	DefaultBenchmarkRounds      = 2
	DefaultIdleRescanMax        = 5 * time.Minute
)

type Config struct {
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// ScanDeadline bounds a full scan of all endpoints.
	ScanDeadline time.Duration `yaml:"scan_deadline" json:"scan_deadline"`

	// MonitorInterval is the time between re-probes of the active
	// endpoint.
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval"`

	// DegradationThreshold is the score below which a reachable active
	// endpoint is replaced. Zero disables score based failover.
	DegradationThreshold float64 `yaml:"degradation_threshold" json:"degradation_threshold"`

	MaxConcurrentProbes int `yaml:"max_concurrent_probes" json:"max_concurrent_probes"`
	BenchmarkRounds     int `yaml:"benchmark_rounds" json:"benchmark_rounds"`

	// IdleRescan retries full scans with exponential backoff (starting
	// at MonitorInterval, capped at IdleRescanMax) while no provider is
	// available.
	IdleRescan    bool          `yaml:"idle_rescan" json:"idle_rescan"`
	IdleRescanMax time.Duration `yaml:"idle_rescan_max" json:"idle_rescan_max"`

	// Filter is the initial domain filter (a capability name).
	Filter string `yaml:"filter" json:"filter,omitempty"`

	Scoring scorer.Config `yaml:"scoring" json:"scoring"`
}

func Default() Config {
	return Config{
		ProbeTimeout:         DefaultProbeTimeout,
		ScanDeadline:         DefaultScanDeadline,
		MonitorInterval:      DefaultMonitorInterval,
		DegradationThreshold: DefaultDegradationThreshold,
		BenchmarkRounds:      DefaultBenchmarkRounds,
		IdleRescan:           true,
		IdleRescanMax:        DefaultIdleRescanMax,
		Scoring:              scorer.DefaultConfig(),
	}
}

// WithDefaults replaces zero or negative durations and counts with their
// defaults. The threshold and booleans are left alone.
func (c Config) WithDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ScanDeadline <= 0 {
		c.ScanDeadline = DefaultScanDeadline
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.BenchmarkRounds <= 0 {
		c.BenchmarkRounds = DefaultBenchmarkRounds
	}
	if c.IdleRescanMax <= 0 {
		c.IdleRescanMax = DefaultIdleRescanMax
	}
	if c.MaxConcurrentProbes < 0 {
		c.MaxConcurrentProbes = 0
	}
	c.Scoring = c.Scoring.WithDefaults()
	return c
}

func (c Config) Validate() error {
	var errs []error
	if c.DegradationThreshold < 0 || c.DegradationThreshold > 100 {
		errs = append(errs, fmt.Errorf("degradation_threshold must be between 0 and 100, got %v", c.DegradationThreshold))
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Parse decodes a YAML document on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration file at path. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}
