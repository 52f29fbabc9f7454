package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.ntppool.org/common/logger"
)

// Run selects a provider and then monitors it until ctx is done. Full
// passes requested with Rescan, SetFilter or ReplaceRegistry are run
// from this loop. While no provider is available and idle rescans are
// enabled, full passes are retried with exponential backoff.
func (e *Engine) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).WithGroup("engine")
	ctx = logger.NewContext(ctx, log)

	expback := backoff.NewExponentialBackOff()
	expback.InitialInterval = e.cfg.MonitorInterval
	expback.MaxInterval = e.cfg.IdleRescanMax
	expback.Reset()

	log.InfoContext(ctx, "starting",
		"endpoints", e.store.Load().Len(),
		"monitor_interval", e.cfg.MonitorInterval,
		"scan_deadline", e.cfg.ScanDeadline)

	e.pass(ctx, TriggerStartup)

	for {
		var wait <-chan time.Time
		var timer *time.Timer

		switch {
		case e.Selection().Active():
			expback.Reset()
			timer = time.NewTimer(e.cfg.MonitorInterval)
		case e.cfg.IdleRescan:
			timer = time.NewTimer(expback.NextBackOff())
		}
		if timer != nil {
			wait = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.InfoContext(ctx, "stopping", "generation", e.Selection().Generation)
			return nil

		case t := <-e.triggers:
			if timer != nil {
				timer.Stop()
			}
			e.pass(ctx, t)

		case <-wait:
			if e.Selection().Active() {
				_, err := e.MonitorOnce(ctx)
				e.logPassError(ctx, err)
			} else {
				e.pass(ctx, TriggerIdle)
			}
		}
	}
}

func (e *Engine) pass(ctx context.Context, t Trigger) {
	_, err := e.Reselect(ctx, t)
	e.logPassError(ctx, err)
}

func (e *Engine) logPassError(ctx context.Context, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	log := logger.FromContext(ctx)
	if errors.Is(err, context.Canceled) {
		// cancelled by a registry replacement, the rescan is queued
		log.DebugContext(ctx, "selection pass superseded")
		return
	}
	log.WarnContext(ctx, "selection pass failed", "err", err)
}
