package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
probe_timeout: 2s
monitor_interval: 15s
degradation_threshold: 0
some_future_option: true
scoring:
  domain: bengali
  preferred_capabilities: [translation]
  weights:
    latency: 1
`))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 15*time.Second, cfg.MonitorInterval)
	assert.Equal(t, DefaultScanDeadline, cfg.ScanDeadline, "absent keys keep their default")
	assert.Equal(t, 0.0, cfg.DegradationThreshold, "explicit zero is kept")
	assert.True(t, cfg.IdleRescan)
	assert.Equal(t, "bengali", cfg.Scoring.Domain)
	assert.Equal(t, []string{"translation"}, cfg.Scoring.PreferredCapabilities)
	assert.Equal(t, 1.0, cfg.Scoring.Weights.Latency)
	assert.Equal(t, 250*time.Millisecond, cfg.Scoring.LatencyRef)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("degradation_threshold: 150\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("probe_timeout: [1, 2]\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "providerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_deadline: 1s\n"), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.ScanDeadline)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{ProbeTimeout: -1}.WithDefaults()
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, DefaultMonitorInterval, cfg.MonitorInterval)
	assert.Equal(t, DefaultBenchmarkRounds, cfg.BenchmarkRounds)
	assert.NoError(t, cfg.Validate())
}
