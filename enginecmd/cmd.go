// Package enginecmd has the providerd command line commands.
package enginecmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.ntppool.org/common/logger"

	"go.lipi.dev/providerd/config"
	"go.lipi.dev/providerd/probe"
	"go.lipi.dev/providerd/registry"
)

// Cmd provides the command structure for CLI integration
type Cmd struct {
	Run     RunCmd     `cmd:"run" help:"select a provider and keep it available"`
	Scan    ScanCmd    `cmd:"scan" help:"run one selection pass and print the results"`
	Version VersionCmd `cmd:"version" help:"print the version"`
}

// EngineFlags are shared by the commands that build an engine. Flags
// and environment variables override the configuration file.
type EngineFlags struct {
	Config   string `name:"config" short:"c" type:"path" env:"PROVIDERD_CONFIG" help:"configuration file (YAML)"`
	Registry string `name:"registry" short:"r" type:"path" env:"PROVIDERD_REGISTRY" required:"" help:"endpoint registry file (YAML)"`

	ProbeTimeout    time.Duration `name:"probe-timeout" env:"PROVIDERD_PROBE_TIMEOUT" help:"timeout for a single probe (default 3s)"`
	ScanDeadline    time.Duration `name:"scan-deadline" env:"PROVIDERD_SCAN_DEADLINE" help:"deadline for a full scan (default 5s)"`
	MonitorInterval time.Duration `name:"monitor-interval" env:"PROVIDERD_MONITOR_INTERVAL" help:"interval between re-probes of the active provider (default 30s)"`
	MaxConcurrent   int           `name:"max-concurrent" env:"PROVIDERD_MAX_CONCURRENT_PROBES" help:"limit on concurrent probes (0 for no limit)"`
	Filter          string        `name:"filter" env:"PROVIDERD_FILTER" help:"only select providers with this capability"`
}

// load reads the configuration and registry files and applies the
// flag overrides. Invalid registry entries are logged and skipped.
func (f *EngineFlags) load(ctx context.Context) (config.Config, *registry.Registry, error) {
	log := logger.FromContext(ctx)

	cfg, err := config.Load(f.Config)
	if err != nil {
		return config.Config{}, nil, err
	}
	if f.ProbeTimeout > 0 {
		cfg.ProbeTimeout = f.ProbeTimeout
	}
	if f.ScanDeadline > 0 {
		cfg.ScanDeadline = f.ScanDeadline
	}
	if f.MonitorInterval > 0 {
		cfg.MonitorInterval = f.MonitorInterval
	}
	if f.MaxConcurrent > 0 {
		cfg.MaxConcurrentProbes = f.MaxConcurrent
	}
	if f.Filter != "" {
		cfg.Filter = f.Filter
	}

	reg, err := registry.Load(f.Registry)
	if reg == nil {
		return config.Config{}, nil, err
	}
	logEntryErrors(ctx, err)

	log.DebugContext(ctx, "configuration loaded",
		"endpoints", reg.Len(),
		"probe_timeout", cfg.ProbeTimeout,
		"scan_deadline", cfg.ScanDeadline,
		"monitor_interval", cfg.MonitorInterval,
		"filter", cfg.Filter,
	)

	return cfg, reg, nil
}

func logEntryErrors(ctx context.Context, err error) {
	if err == nil {
		return
	}
	log := logger.FromContext(ctx)

	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		log.WarnContext(ctx, "registry", "err", err)
		return
	}
	for _, e := range joined.Unwrap() {
		var entry *registry.EntryError
		if errors.As(e, &entry) {
			log.WarnContext(ctx, "skipping registry entry", "index", entry.Index, "id", entry.ID, "err", entry.Err)
			continue
		}
		log.WarnContext(ctx, "registry", "err", e)
	}
}

func newProber(cfg config.Config) *probe.Prober {
	return probe.New(
		probe.NewDispatch(probe.NewHTTPClient()),
		probe.WithBenchmarker(probe.SyntheticWorkload{Rounds: cfg.BenchmarkRounds}),
		probe.WithDefaultTimeout(cfg.ProbeTimeout),
	)
}

func formatScore(v float64, eligible bool) string {
	if !eligible {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}
