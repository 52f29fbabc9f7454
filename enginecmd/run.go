package enginecmd

import (
	"context"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/metricsserver"
	"go.ntppool.org/common/version"
	"golang.org/x/sync/errgroup"

	"go.lipi.dev/providerd/engine"
	"go.lipi.dev/providerd/registry"
	"go.lipi.dev/providerd/statusapi"
)

type RunCmd struct {
	EngineFlags `embed:""`

	Listen      string `name:"listen" env:"PROVIDERD_LISTEN" help:"address for the status API, for example localhost:8095 (disabled when empty)"`
	MetricsPort int    `name:"metrics-port" default:"9000" env:"PROVIDERD_METRICS_PORT" help:"metrics server port"`
	Watch       bool   `name:"watch" default:"true" negatable:"" help:"reload the registry file when it changes"`
}

func (cmd *RunCmd) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.InfoContext(ctx, "providerd starting", "version", version.Version())

	cfg, reg, err := cmd.load(ctx)
	if err != nil {
		return err
	}

	metricssrv := metricsserver.New()
	version.RegisterMetric("providerd", metricssrv.Registry())
	metrics := engine.NewMetrics(metricssrv.Registry())

	eng, err := engine.New(cfg, registry.NewStore(reg), newProber(cfg), engine.WithMetrics(metrics))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := metricssrv.ListenAndServe(ctx, cmd.MetricsPort); err != nil {
			log.ErrorContext(ctx, "metrics server error", "err", err)
		}
		return nil
	})

	if cmd.Listen != "" {
		api := statusapi.New(ctx, eng)
		g.Go(func() error {
			return api.ListenAndServe(ctx, cmd.Listen)
		})
	}

	if cmd.Watch {
		g.Go(func() error {
			return registry.Watch(ctx, cmd.Registry, func(reg *registry.Registry, err error) {
				logEntryErrors(ctx, err)
				eng.ReplaceRegistry(ctx, reg)
			})
		})
	}

	g.Go(func() error {
		logEvents(ctx, eng)
		return nil
	})

	g.Go(func() error {
		return eng.Run(ctx)
	})

	return g.Wait()
}

// logEvents writes the engine's status events to the log until ctx is
// done.
func logEvents(ctx context.Context, eng *engine.Engine) {
	log := logger.FromContext(ctx).WithGroup("events")

	events, stop := eng.Subscribe()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			log.InfoContext(ctx, ev.Message,
				"type", ev.Type,
				"generation", ev.Generation,
				"id", ev.ID,
			)
		}
	}
}
