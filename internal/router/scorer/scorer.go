package scorer

import (
	"context"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/developer-mesh/agent-router/internal/router/task"
)

// Aggregate7Day holds the 7-day historical aggregate queried per
// candidate (§4.4 step 1). A HistoryStore that finds no rows for an
// agent returns Found=false and the Scorer substitutes the documented
// defaults.
type Aggregate7Day struct {
	Found            bool
	SuccessRate      float64
	AvgExecutionMs   float64
	AvgCostCents     float64
	P95ExecutionMs   float64
}

// HistoryStore is the pure-reader interface the Scorer uses to pull
// historical outcome aggregates. Implementations are backed by the
// durable store (§6) and must not mutate state.
type HistoryStore interface {
	// Aggregate7Day returns the candidate's rolling 7-day outcome
	// aggregate.
	Aggregate7Day(ctx context.Context, agentID string) (Aggregate7Day, error)
	// TaskSuccessRate30Day returns the success rate for the exact
	// (task_type, complexity) pairing over the last 30 days.
	TaskSuccessRate30Day(ctx context.Context, agentID string, taskKey string) (rate float64, found bool, err error)
}

// Scorer computes a PerformanceScore per candidate (§4.4).
type Scorer struct {
	history HistoryStore
	loads   *load.Tracker
}

// New creates a Scorer backed by history for historical aggregates and
// loads for the live load penalty.
func New(history HistoryStore, loads *load.Tracker) *Scorer {
	return &Scorer{history: history, loads: loads}
}

// Aggregate exposes the candidate's 7-day historical aggregate directly,
// for callers outside the scoring pipeline (the health_status endpoint)
// that need the same underlying numbers the Scorer reads, grounded on the
// original's monitor_agent_health pulling from the same metrics table
// Scorer itself queries.
func (s *Scorer) Aggregate(ctx context.Context, agentID string) (Aggregate7Day, error) {
	return s.history.Aggregate7Day(ctx, agentID)
}

// Score computes the PerformanceScore for a single candidate agent
// against a task, following the deterministic five-step pipeline in
// §4.4 of the specification.
func (s *Scorer) Score(ctx context.Context, agentID string, t task.Context) (Score, error) {
	agg, err := s.history.Aggregate7Day(ctx, agentID)
	if err != nil {
		// A persistence read failure degrades to "skip that signal":
		// treat as not found and fall back to documented defaults.
		agg = Aggregate7Day{}
	}
	if !agg.Found {
		agg = Aggregate7Day{
			SuccessRate:    0.8,
			AvgExecutionMs: 1000,
			AvgCostCents:   10,
		}
	}

	historical := 0.8
	if rate, found, herr := s.history.TaskSuccessRate30Day(ctx, agentID, t.Key()); herr == nil && found {
		historical = rate
	}

	sc := Score{
		Reliability:     clamp01(agg.SuccessRate),
		Performance:     clamp01(1 - (agg.AvgExecutionMs-100)/5000),
		CostEfficiency:  clampRange(20/nonZero(agg.AvgCostCents), 0.1, 1.0),
		CapabilityMatch: 0.8,
		Historical:      clamp01(historical),
		Load:            1.0,
	}

	overall := 0.25*sc.Reliability + 0.20*sc.Performance + 0.15*sc.CostEfficiency +
		0.20*sc.CapabilityMatch + 0.10*sc.Load + 0.10*sc.Historical

	ratio := s.loads.Ratio(agentID)
	penalty := loadPenalty(ratio)
	sc.Load = 1 - penalty
	overall *= 1 - penalty

	overall = applyTaskAdjustments(overall, sc, t)

	sc.Overall = clamp01(overall)
	return sc, nil
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 10
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// loadPenalty returns the §4.4 step 4 penalty band for a load ratio.
func loadPenalty(ratio float64) float64 {
	switch {
	case ratio < 0.3:
		return 0
	case ratio < 0.7:
		return 0.1
	case ratio < 0.9:
		return 0.3
	default:
		return 0.7
	}
}

// applyTaskAdjustments applies the §4.4 step 5 task-feature adjustments,
// in the order given by the specification.
func applyTaskAdjustments(overall float64, sc Score, t task.Context) float64 {
	if t.Priority >= 8 && sc.Reliability >= 0.9 {
		overall *= 1.1
	}
	if t.Priority <= 3 {
		overall = 0.7*overall + 0.3*sc.CostEfficiency
	}
	if t.Complexity == task.ComplexityCritical {
		overall = 0.6*sc.Reliability + 0.4*overall
	}
	if t.Complexity == task.ComplexitySimple {
		overall = 0.7*overall + 0.3*sc.CostEfficiency
	}
	if t.DeadlineWithin(5 * time.Minute) {
		overall = 0.6*overall + 0.4*sc.Performance
	}
	return overall
}
