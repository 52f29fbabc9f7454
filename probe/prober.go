package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.lipi.dev/providerd/registry"
)

const DefaultTimeout = 3 * time.Second

// ErrUnreachable is wrapped by checkers when the endpoint could not be
// contacted or refused service.
var ErrUnreachable = errors.New("endpoint unreachable")

// Checker performs one reachability/capability check. It may return a
// provider reported performance sample.
type Checker interface {
	Check(ctx context.Context, d registry.Descriptor) (*Sample, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, d registry.Descriptor) (*Sample, error)

func (f CheckerFunc) Check(ctx context.Context, d registry.Descriptor) (*Sample, error) {
	return f(ctx, d)
}

// Prober runs single bounded-time checks.
type Prober struct {
	checker        Checker
	bench          Benchmarker
	defaultTimeout time.Duration
}

type Option func(*Prober)

// WithBenchmarker replaces the synthetic workload used for model
// endpoints that don't report their own sample.
func WithBenchmarker(b Benchmarker) Option {
	return func(p *Prober) { p.bench = b }
}

// WithDefaultTimeout sets the timeout used when Probe is called with a
// zero timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}

func New(checker Checker, opts ...Option) *Prober {
	p := &Prober{
		checker:        checker,
		bench:          SyntheticWorkload{Rounds: 2},
		defaultTimeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type checkOutcome struct {
	sample  *Sample
	latency time.Duration
	err     error
}

// Probe checks d once and always returns within timeout (or when ctx is
// done, whichever is first). Errors from the check are reported in the
// Result, never returned.
func (p *Prober) Probe(ctx context.Context, d registry.Descriptor, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}

	ctx, span := tracing.Start(ctx, "probe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("endpoint.id", d.ID),
			attribute.String("endpoint.kind", string(d.Kind)),
			attribute.String("endpoint.probe", d.ProbeStrategy()),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	// buffered so an abandoned check can always finish and exit
	ch := make(chan checkOutcome, 1)
	go func() {
		ch <- p.run(ctx, d)
	}()

	var r Result
	select {
	case out := <-ch:
		r = p.result(out)
	case <-ctx.Done():
		r = Result{
			Outcome: TimedOut,
			Latency: time.Since(start),
			Detail:  fmt.Sprintf("no answer within %s", timeout),
		}
	}
	r.DescriptorID = d.ID
	r.Timestamp = start

	span.SetAttributes(
		attribute.String("probe.outcome", string(r.Outcome)),
		attribute.Int64("probe.latency_us", r.Latency.Microseconds()),
	)
	if !r.Reachable() {
		span.SetStatus(codes.Error, r.Detail)
		logger.FromContext(ctx).DebugContext(ctx, "probe failed",
			"id", d.ID, "outcome", r.Outcome, "latency", r.Latency, "detail", r.Detail)
	}

	return r
}

func (p *Prober) run(ctx context.Context, d registry.Descriptor) (out checkOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = checkOutcome{err: fmt.Errorf("check panicked: %v", rec)}
		}
	}()

	start := time.Now()
	sample, err := p.checker.Check(ctx, d)
	out = checkOutcome{sample: sample, latency: time.Since(start), err: err}
	if err != nil || d.Kind != registry.KindModel || sample != nil {
		return out
	}

	out.sample = p.benchmark(ctx, d, out.latency)
	return out
}

// benchmark runs the synthetic workload in half of the remaining probe
// budget. When that produces nothing the sample is derived from the
// check latency so model endpoints always carry one.
func (p *Prober) benchmark(ctx context.Context, d registry.Descriptor, latency time.Duration) *Sample {
	if p.bench != nil {
		bctx := ctx
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			bctx, cancel = context.WithTimeout(ctx, time.Until(deadline)/2)
			defer cancel()
		}
		s, err := p.bench.Benchmark(bctx, p.checker, d)
		if err == nil && s != nil {
			return s
		}
	}
	return latencySample(latency)
}

func (p *Prober) result(out checkOutcome) Result {
	r := Result{
		Outcome: classify(out.err),
		Latency: out.latency,
	}
	if out.err != nil {
		r.Detail = out.err.Error()
		return r
	}
	r.Sample = out.sample
	return r
}

func classify(err error) Outcome {
	if err == nil {
		return Reachable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TimedOut
	}
	if errors.Is(err, ErrUnreachable) {
		return Unreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return TimedOut
		}
		return Unreachable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Unreachable
	}
	return Errored
}
