package loops

import (
	"context"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/learning"
	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/task"
)

// AgentLister is the slice of Registry the control loops depend on: the
// set of currently-operational agent ids to sweep.
type AgentLister interface {
	ActiveAgentIDs() []string
}

// ScoreCacheWriter is the write side of the PerformanceScore cache the
// PerformanceRefresh loop keeps warm.
type ScoreCacheWriter interface {
	Set(ctx context.Context, agentID string, taskKey string, score scorer.Score, ttl time.Duration) error
}

// refreshTaskKeys are the representative task contexts the refresh loop
// scores every active agent against, since the loop has no live request
// to score and must pick stand-ins that cover the complexity bands.
var refreshTaskKeys = []task.Context{
	{TaskType: "summarize", Complexity: task.ComplexitySimple},
	{TaskType: "code_review", Complexity: task.ComplexityModerate},
	{TaskType: "code_review", Complexity: task.ComplexityComplex},
	{TaskType: "incident_response", Complexity: task.ComplexityCritical},
}

// PerformanceRefreshTick recomputes and caches PerformanceScore for every
// active agent across a representative set of task shapes (§5: every 5
// minutes, retry after 1 minute on failure).
func PerformanceRefreshTick(agents AgentLister, sc *scorer.Scorer, cache ScoreCacheWriter, ttl time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, agentID := range agents.ActiveAgentIDs() {
			for _, t := range refreshTaskKeys {
				score, err := sc.Score(ctx, agentID, t)
				if err != nil {
					return err
				}
				if err := cache.Set(ctx, agentID, t.Key(), score, ttl); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// BreakerTransitionsTick applies the scanning-owned breaker transitions
// (§5: every 30 seconds, retry after 30 seconds on failure — there is no
// failure mode in ScanTransitions itself, but the signature stays
// error-returning so it composes with Runner).
func BreakerTransitionsTick(breakers *breaker.Manager) func(context.Context) error {
	return func(context.Context) error {
		breakers.ScanTransitions()
		return nil
	}
}

// SnapshotWriter persists a point-in-time view of an agent's load and
// breaker state for historical analytics.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, agentID string, loadCount int, loadRatio float64, breakerState breaker.Snapshot) error
}

// PerformanceSnapshotsTick records a load+breaker snapshot for every
// active agent (§5: every 10 minutes, retry after 5 minutes on failure).
func PerformanceSnapshotsTick(agents AgentLister, loads *load.Tracker, breakers *breaker.Manager, writer SnapshotWriter) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, agentID := range agents.ActiveAgentIDs() {
			snap := breakers.Get(agentID).Snapshot()
			if err := writer.WriteSnapshot(ctx, agentID, loads.Count(agentID), loads.Ratio(agentID), snap); err != nil {
				return err
			}
		}
		return nil
	}
}

// SpecializationScanTick runs the full specialization re-detection sweep
// (§5: every 30 minutes, retry after 5 minutes on failure).
func SpecializationScanTick(engine *learning.Engine) func(context.Context) error {
	return func(ctx context.Context) error {
		engine.DetectSpecializations(ctx)
		return nil
	}
}
