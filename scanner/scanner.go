// Package scanner probes every registered endpoint concurrently.
package scanner

import (
	"context"
	"time"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"go.lipi.dev/providerd/probe"
	"go.lipi.dev/providerd/registry"
)

const DefaultDeadline = 5 * time.Second

// Prober is the part of *probe.Prober the scanner needs.
type Prober interface {
	Probe(ctx context.Context, d registry.Descriptor, timeout time.Duration) probe.Result
}

type Options struct {
	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration

	// Deadline bounds the whole scan. Probes still running when it
	// expires are recorded as timed out.
	Deadline time.Duration

	// MaxConcurrent limits the number of probes in flight; zero means
	// all endpoints are probed at once.
	MaxConcurrent int
}

type Scanner struct {
	prober Prober
	opts   Options
}

func New(prober Prober, opts Options) *Scanner {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = probe.DefaultTimeout
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	return &Scanner{prober: prober, opts: opts}
}

// Scan probes every descriptor of reg and returns one result per
// descriptor, in registration order. Scan does not retry.
//
// The only error is the cancellation of ctx, in which case no results are
// returned; expiry of the scan deadline is not an error.
func (s *Scanner) Scan(ctx context.Context, reg *registry.Registry) ([]probe.Result, error) {
	descs := reg.Descriptors()

	ctx, span := tracing.Start(ctx, "scan",
		trace.WithAttributes(attribute.Int("endpoints", len(descs))),
	)
	defer span.End()

	log := logger.FromContext(ctx)
	start := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.opts.Deadline)
	defer cancel()

	type slot struct {
		i int
		r probe.Result
	}
	// buffered so abandoned probes can always deliver and exit
	ch := make(chan slot, len(descs))

	go func() {
		g := errgroup.Group{}
		if s.opts.MaxConcurrent > 0 {
			g.SetLimit(s.opts.MaxConcurrent)
		}
		for i, d := range descs {
			g.Go(func() error {
				ch <- slot{i: i, r: s.probe(scanCtx, d)}
				return nil
			})
		}
		_ = g.Wait()
	}()

	results := make([]probe.Result, len(descs))
	done := make([]bool, len(descs))

collect:
	for received := 0; received < len(descs); received++ {
		select {
		case sl := <-ch:
			results[sl.i] = sl.r
			done[sl.i] = true
		case <-scanCtx.Done():
			break collect
		}
	}

	if err := ctx.Err(); err != nil {
		log.DebugContext(ctx, "scan cancelled", "err", err)
		return nil, err
	}

	for i, d := range descs {
		if !done[i] {
			results[i] = probe.Result{
				DescriptorID: d.ID,
				Outcome:      probe.TimedOut,
				Latency:      time.Since(start),
				Timestamp:    start,
				Detail:       "abandoned at scan deadline",
			}
		}
	}

	reachable := 0
	for _, r := range results {
		if r.Reachable() {
			reachable++
		}
	}
	span.SetAttributes(attribute.Int("reachable", reachable))
	log.DebugContext(ctx, "scan complete",
		"endpoints", len(results),
		"reachable", reachable,
		"duration", time.Since(start))

	return results, nil
}

func (s *Scanner) probe(ctx context.Context, d registry.Descriptor) probe.Result {
	// waiting for a concurrency slot can outlast the deadline
	if ctx.Err() != nil {
		return probe.Result{
			DescriptorID: d.ID,
			Outcome:      probe.TimedOut,
			Timestamp:    time.Now(),
			Detail:       "scan deadline expired before probe started",
		}
	}
	return s.prober.Probe(ctx, d, s.opts.ProbeTimeout)
}
