// Package loops implements the four background control loops (§5) that
// keep routing state fresh without being on the hot path of Route: score
// refresh, breaker transition scanning, performance snapshotting, and
// specialization scanning.
package loops

import (
	"context"
	"time"

	"github.com/developer-mesh/agent-router/pkg/observability"
)

// Runner drives a single named control loop on a fixed interval, with a
// bounded retry delay applied after a failed tick, grounded on the
// teacher's StartPeriodicCleanup ticker-loop shape.
type Runner struct {
	name       string
	interval   time.Duration
	retryDelay time.Duration
	tick       func(ctx context.Context) error
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewRunner builds a Runner for one control loop.
func NewRunner(name string, interval, retryDelay time.Duration, tick func(ctx context.Context) error, logger observability.Logger, metrics observability.MetricsClient) *Runner {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &Runner{
		name:       name,
		interval:   interval,
		retryDelay: retryDelay,
		tick:       tick,
		logger:     logger.WithPrefix("loops." + name),
		metrics:    metrics,
	}
}

// Run blocks, ticking at the configured interval until ctx is canceled.
// A failed tick is retried after retryDelay instead of waiting for the
// full interval, so a transient failure doesn't stall freshness.
func (r *Runner) Run(ctx context.Context) {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			start := time.Now()
			err := r.tick(ctx)
			success := err == nil
			r.metrics.RecordOperation("loops", r.name, success, time.Since(start).Seconds(), nil)

			if err != nil {
				r.logger.Warnf("%s tick failed, retrying in %s: %v", r.name, r.retryDelay, err)
				timer.Reset(r.retryDelay)
				continue
			}
			timer.Reset(r.interval)
		}
	}
}

// Group owns every control loop and their shared shutdown signal.
type Group struct {
	runners []*Runner
	cancel  context.CancelFunc
}

// NewGroup wires the four control loops.
func NewGroup(perfRefresh, breakerScan, snapshots, specScan *Runner) *Group {
	return &Group{runners: []*Runner{perfRefresh, breakerScan, snapshots, specScan}}
}

// Start launches every loop in its own goroutine.
func (g *Group) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	for _, r := range g.runners {
		go r.Run(ctx)
	}
}

// Stop signals every loop to exit. It does not block for their goroutines
// to actually finish since each completes its in-flight tick quickly.
func (g *Group) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}
