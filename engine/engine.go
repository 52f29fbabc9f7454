// Package engine keeps the active provider selected.
//
// An Engine owns the current Selection. A full pass scans every
// registered endpoint, scores the results and selects one; afterwards
// the failover monitor re-probes only the active endpoint on a fixed
// interval and starts a new full pass when that endpoint is lost or its
// score drops below the degradation threshold.
//
// Only the engine writes the Selection. Collaborators read it with
// Selection, poll State, or follow the status events from Subscribe.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"go.lipi.dev/providerd/config"
	"go.lipi.dev/providerd/probe"
	"go.lipi.dev/providerd/registry"
	"go.lipi.dev/providerd/scanner"
	"go.lipi.dev/providerd/scorer"
	"go.lipi.dev/providerd/selector"
)

// Provider is one registered endpoint with its most recent probe result
// and score. Result and Score are nil until the endpoint has been probed.
type Provider struct {
	Descriptor registry.Descriptor `json:"descriptor"`
	Result     *probe.Result       `json:"result,omitempty"`
	Score      *scorer.Score       `json:"score,omitempty"`
	Active     bool                `json:"active"`
}

type observation struct {
	result probe.Result
	score  scorer.Score
}

type Option func(*Engine)

// WithMetrics records engine metrics in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

type Engine struct {
	cfg      config.Config
	store    *registry.Store
	prober   scanner.Prober
	scanner  *scanner.Scanner
	scorer   *scorer.Scorer
	selector *selector.Selector
	metrics  *Metrics
	events   *eventBus

	// passMu serializes full passes
	passMu sync.Mutex

	mu         sync.RWMutex
	selection  selector.Selection
	state      State
	filter     selector.Filter
	latest     map[string]observation
	passCancel context.CancelFunc

	triggers chan Trigger
}

// New returns an engine for the endpoints in store. The engine is idle
// until Run or Reselect is called.
func New(cfg config.Config, store *registry.Store, prober scanner.Prober, opts ...Option) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = registry.NewStore(nil)
	}
	if prober == nil {
		return nil, errors.New("engine: prober is required")
	}

	e := &Engine{
		cfg:    cfg,
		store:  store,
		prober: prober,
		scanner: scanner.New(prober, scanner.Options{
			ProbeTimeout:  cfg.ProbeTimeout,
			Deadline:      cfg.ScanDeadline,
			MaxConcurrent: cfg.MaxConcurrentProbes,
		}),
		scorer:   scorer.New(cfg.Scoring),
		selector: selector.New(),
		filter:   selector.Filter{Capability: cfg.Filter},
		latest:   map[string]observation{},
		triggers: make(chan Trigger, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.events = newEventBus(e.metrics.dropEvent)
	e.metrics.TrackState(Idle)

	return e, nil
}

// Selection returns a snapshot of the current selection.
func (e *Engine) Selection() selector.Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selection
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Filter returns the domain filter applied to selection passes.
func (e *Engine) Filter() selector.Filter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filter
}

func (e *Engine) Config() config.Config {
	return e.cfg
}

// Registry returns the registry snapshot currently in use.
func (e *Engine) Registry() *registry.Registry {
	return e.store.Load()
}

// Providers returns every registered endpoint in registration order
// with its most recent probe result and score.
func (e *Engine) Providers() []Provider {
	descs := e.store.Load().Descriptors()

	e.mu.RLock()
	defer e.mu.RUnlock()

	providers := make([]Provider, 0, len(descs))
	for _, d := range descs {
		p := Provider{
			Descriptor: d,
			Active:     d.ID == e.selection.DescriptorID,
		}
		if obs, ok := e.latest[d.ID]; ok {
			r, sc := obs.result, obs.score
			p.Result = &r
			p.Score = &sc
		}
		providers = append(providers, p)
	}
	return providers
}

// Subscribe returns a channel of status events and a function that ends
// the subscription. Events are dropped for subscribers that fall behind.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// Recent returns up to n recent events, oldest first.
func (e *Engine) Recent(n int) []Event {
	return e.events.list(n)
}

// Rescan requests a full pass from the Run loop. Requests made while a
// pass is pending are coalesced.
func (e *Engine) Rescan() {
	e.request(TriggerManual)
}

// SetFilter changes the domain filter and requests a full pass. The
// filter stays in effect until it is changed again; an empty capability
// clears it.
func (e *Engine) SetFilter(capability string) {
	e.mu.Lock()
	changed := e.filter.Capability != capability
	e.filter = selector.Filter{Capability: capability}
	e.mu.Unlock()

	if changed {
		e.request(TriggerFilter)
	}
}

// ReplaceRegistry swaps in a new registry, cancels a pass in progress
// and requests a new one.
func (e *Engine) ReplaceRegistry(ctx context.Context, reg *registry.Registry) {
	old := e.store.Replace(reg)
	reg = e.store.Load()

	e.mu.Lock()
	for id := range e.latest {
		if _, ok := reg.Get(id); !ok {
			delete(e.latest, id)
			e.metrics.ForgetEndpoint(id)
		}
	}
	if e.passCancel != nil {
		e.passCancel()
	}
	generation := e.selection.Generation
	e.mu.Unlock()

	logger.FromContext(ctx).InfoContext(ctx, "registry replaced",
		"previous", old.Len(), "endpoints", reg.Len())
	e.events.publish(Event{
		Type:       EventRegistryReloaded,
		Generation: generation,
		Message:    fmt.Sprintf("registry reloaded with %d endpoints", reg.Len()),
	})

	e.request(TriggerRegistry)
}

func (e *Engine) request(t Trigger) {
	select {
	case e.triggers <- t:
	default:
	}
}

func (e *Engine) setState(s State) {
	e.state = s
	e.metrics.TrackState(s)
}

// Reselect runs a full scan, score and select pass and commits the new
// selection, which may be empty. If ctx is cancelled, or the pass is
// cancelled by a registry replacement, the previous selection and state
// are kept and the context error is returned.
func (e *Engine) Reselect(ctx context.Context, trigger Trigger) (selector.Selection, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	ctx, span := tracing.Start(ctx, "reselect",
		trace.WithAttributes(attribute.String("trigger", string(trigger))),
	)
	defer span.End()

	log := logger.FromContext(ctx)
	start := time.Now()

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	prevState := e.state
	filter := e.filter
	filter.MinScore = e.cfg.DegradationThreshold
	e.passCancel = cancel
	e.setState(Reselecting)
	e.mu.Unlock()

	reg := e.store.Load()
	results, err := e.scanner.Scan(passCtx, reg)
	if err == nil {
		err = passCtx.Err()
	}
	if err != nil {
		e.mu.Lock()
		e.passCancel = nil
		e.setState(prevState)
		sel := e.selection
		e.mu.Unlock()

		e.metrics.TrackReselect(trigger, "cancelled", 0)
		log.DebugContext(ctx, "selection pass cancelled", "trigger", trigger, "err", err)
		return sel, err
	}

	descs := reg.Descriptors()
	batch := make([]selector.Candidate, len(descs))
	reachable := 0
	for i, d := range descs {
		r := results[i]
		sc := e.scorer.Score(d, r)
		batch[i] = selector.Candidate{
			Descriptor: d,
			Result:     r,
			Score:      sc,
			Position:   i,
		}
		if r.Reachable() {
			reachable++
		}
		e.metrics.TrackProbe(r, sc.Value)
	}

	e.mu.Lock()
	prev := e.selection
	next := e.selector.Select(batch, filter)
	e.selection = next
	for _, c := range batch {
		e.latest[c.Descriptor.ID] = observation{result: c.Result, score: c.Score}
	}
	e.passCancel = nil
	if next.Active() {
		e.setState(Monitoring)
	} else {
		e.setState(Idle)
	}
	e.mu.Unlock()

	switched := prev.Active() && next.Active() && prev.DescriptorID != next.DescriptorID
	e.metrics.TrackSelection(next.Generation, switched)
	e.metrics.TrackReselect(trigger, "committed", time.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int64("generation", int64(next.Generation)),
		attribute.String("selected", next.DescriptorID),
	)
	log.InfoContext(ctx, "selection pass complete",
		"trigger", trigger,
		"generation", next.Generation,
		"selected", next.DescriptorID,
		"reachable", reachable,
		"endpoints", len(descs),
		"duration", time.Since(start),
	)

	e.announce(prev, next, reachable, len(descs))

	return next, nil
}

func (e *Engine) announce(prev, next selector.Selection, reachable, total int) {
	switch {
	case !prev.Active() && next.Active():
		e.events.publish(Event{
			Type:       EventConnect,
			Descriptor: next.DescriptorID,
			Generation: next.Generation,
			Message:    fmt.Sprintf("connected to %s", next.Descriptor.DisplayName()),
		})
	case prev.Active() && !next.Active():
		e.events.publish(Event{
			Type:       EventDisconnect,
			Previous:   prev.DescriptorID,
			Generation: next.Generation,
			Message:    fmt.Sprintf("disconnected from %s, no provider available", prev.Descriptor.DisplayName()),
		})
	case prev.Active() && next.Active() && prev.DescriptorID != next.DescriptorID:
		e.events.publish(Event{
			Type:       EventFallbackSwitched,
			Descriptor: next.DescriptorID,
			Previous:   prev.DescriptorID,
			Generation: next.Generation,
			Message: fmt.Sprintf("switched from %s to %s",
				prev.Descriptor.DisplayName(), next.Descriptor.DisplayName()),
		})
	}

	e.events.publish(Event{
		Type:       EventScanComplete,
		Descriptor: next.DescriptorID,
		Generation: next.Generation,
		Message:    fmt.Sprintf("scan complete, %d of %d endpoints reachable", reachable, total),
	})
}

// MonitorOnce re-probes the active endpoint. When the probe succeeds with
// a score at or above the degradation threshold the selection is
// refreshed in place; otherwise a full pass is run. The return value
// reports whether a degradation was detected.
//
// Without an active selection MonitorOnce does nothing.
func (e *Engine) MonitorOnce(ctx context.Context) (bool, error) {
	sel := e.Selection()
	if !sel.Active() {
		return false, nil
	}

	log := logger.FromContext(ctx)
	filter := e.Filter()

	d, ok := e.store.Load().Get(sel.DescriptorID)
	var reason string
	if !ok {
		reason = "no longer registered"
	} else {
		r := e.prober.Probe(ctx, d, e.cfg.ProbeTimeout)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		sc := e.scorer.Score(d, r)
		e.metrics.TrackProbe(r, sc.Value)

		switch {
		case !r.Reachable():
			reason = fmt.Sprintf("probe %s", r.Outcome)
		case e.cfg.DegradationThreshold > 0 && sc.Value < e.cfg.DegradationThreshold:
			reason = fmt.Sprintf("score %.1f below threshold %.1f", sc.Value, e.cfg.DegradationThreshold)
		case !filter.Match(d):
			reason = fmt.Sprintf("does not provide %s", filter.Capability)
		}

		e.mu.Lock()
		e.latest[d.ID] = observation{result: r, score: sc}
		// a pass may have committed while the probe ran
		current := e.selection.Generation == sel.Generation
		if reason == "" && current {
			e.selection = e.selection.Refresh(r, sc)
		}
		e.mu.Unlock()

		if !current {
			return false, nil
		}
		if reason == "" {
			log.DebugContext(ctx, "active provider validated",
				"id", d.ID, "latency", r.Latency, "score", sc.Value)
			return false, nil
		}
	}

	log.WarnContext(ctx, "active provider degraded", "id", sel.DescriptorID, "reason", reason)
	e.metrics.TrackDegradation(sel.DescriptorID)
	e.events.publish(Event{
		Type:       EventDegraded,
		Descriptor: sel.DescriptorID,
		Generation: sel.Generation,
		Message:    fmt.Sprintf("%s degraded: %s", sel.Descriptor.DisplayName(), reason),
	})

	_, err := e.Reselect(ctx, TriggerDegraded)
	return true, err
}
