package outcome

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/developer-mesh/agent-router/internal/router/routererrors"
	"github.com/developer-mesh/agent-router/pkg/observability"
)

// RoutingRecordLookup resolves a routing_id to the agent_id and task
// metadata recorded at selection time, and reports whether it has already
// received an outcome update.
type RoutingRecordLookup interface {
	// Lookup returns the routing record's agent_id, task_type and
	// complexity, and whether an outcome has already been applied.
	Lookup(ctx context.Context, routingID string) (agentID, taskType, complexity string, alreadyRecorded bool, err error)
	// MarkRecorded flips the routing record to "has an outcome",
	// atomically with the first call for a given routing_id.
	MarkRecorded(ctx context.Context, routingID string) error
}

// ScoreCache invalidates cached PerformanceScore entries.
type ScoreCache interface {
	Invalidate(ctx context.Context, agentID string) error
}

// DurableWriter persists a TaskOutcome to the relational store.
type DurableWriter interface {
	SaveOutcome(ctx context.Context, o TaskOutcome) error
}

// LearningIngester is the synchronous, in-memory side of
// LearningEngine.ingest (§4.7); the durable write happens separately
// through DurableWriter.
type LearningIngester interface {
	Ingest(o TaskOutcome)
}

// Recorder implements OutcomeRecorder.
type Recorder struct {
	lookup    RoutingRecordLookup
	breakers  *breaker.Manager
	loads     *load.Tracker
	cache     ScoreCache
	durable   DurableWriter
	learning  LearningIngester
	logger    observability.Logger
	perf      *observability.PerformanceLogger
	metrics   observability.MetricsClient
}

// New creates a Recorder wiring every collaborator OutcomeRecorder touches.
func New(lookup RoutingRecordLookup, breakers *breaker.Manager, loads *load.Tracker, cache ScoreCache, durable DurableWriter, learning LearningIngester, logger observability.Logger, metrics observability.MetricsClient) *Recorder {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	prefixed := logger.WithPrefix("outcome")
	return &Recorder{
		lookup:   lookup,
		breakers: breakers,
		loads:    loads,
		cache:    cache,
		durable:  durable,
		learning: learning,
		logger:   prefixed,
		perf:     observability.NewPerformanceLogger(prefixed),
		metrics:  metrics,
	}
}

// Record applies an outcome report, per the five steps of §4.6. It is
// idempotent: a second call for the same routing_id is a no-op.
func (r *Recorder) Record(ctx context.Context, report Report) error {
	agentID, taskType, complexity, already, err := r.lookup.Lookup(ctx, report.RoutingID)
	if err != nil {
		return routererrors.New(routererrors.KindOutcomeNotFound, "Recorder.Record", err).
			WithContext("routing_id", report.RoutingID)
	}
	if already {
		return nil
	}
	if err := r.lookup.MarkRecorded(ctx, report.RoutingID); err != nil {
		// Another caller won the race to record this outcome first.
		return nil
	}

	score := successScore(report.Success, report.QualityMetrics)

	if report.Success {
		r.breakers.RecordSuccess(agentID)
	} else {
		r.breakers.RecordFailure(agentID)
	}

	r.loads.Decrement(agentID)

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, agentID); err != nil {
			r.logger.Warnf("failed to invalidate score cache for %s: %v", agentID, err)
		}
	}

	out := TaskOutcome{
		RoutingID:         report.RoutingID,
		AgentID:           agentID,
		TaskType:          taskType,
		Complexity:        complexity,
		SuccessScore:      score,
		CompletionSeconds: report.ExecutionMs / 1000.0,
		QualityMetrics:    report.QualityMetrics,
		UserSatisfaction:  report.UserSatisfaction,
		ErrorCount:        report.ErrorCount,
		RetryAttempts:     report.RetryAttempts,
		CostActualCents:   report.CostCents,
		CreatedAt:         time.Now(),
	}

	if r.learning != nil {
		r.learning.Ingest(out)
	}

	r.persistDurable(ctx, out)

	return nil
}

// persistDurable retries the durable write once synchronously per §7's
// outcome-path propagation policy, logging and swallowing any further
// failure since in-memory state is already consistent.
func (r *Recorder) persistDurable(ctx context.Context, out TaskOutcome) {
	if r.durable == nil {
		return
	}

	stop := r.perf.StartTimer("durable outcome write", observability.LogLevelDebug)
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	err := backoff.Retry(func() error {
		return r.durable.SaveOutcome(ctx, out)
	}, policy)
	stop(map[string]interface{}{"routing_id": out.RoutingID, "agent_id": out.AgentID})

	if err != nil {
		r.metrics.RecordCounter("outcome_durable_write_failures_total", 1, map[string]string{"agent_id": out.AgentID})
		r.logger.Warnf("durable outcome write failed after retry; outcome for routing_id %s not persisted: %v", out.RoutingID, err)
	}
}
