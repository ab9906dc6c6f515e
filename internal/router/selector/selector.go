package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/routererrors"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/task"
	"github.com/google/uuid"
)

// EstimateStore supplies the historical means the Selector uses for its
// completion-time and cost estimates (§4.5). A pure reader, like Scorer's
// HistoryStore.
type EstimateStore interface {
	MeanCompletionSeconds14Day(ctx context.Context, agentID, taskKey string) (float64, bool, error)
	MeanCostCents14Day(ctx context.Context, agentID, taskKey string) (float64, bool, error)
}

// RoutingRecord is the durable row created for every routing decision,
// joined later by OutcomeRecorder on RoutingID.
type RoutingRecord struct {
	RoutingID      string
	AgentID        string
	TaskType       string
	Complexity     string
	SelectionScore float64
	RoutingTimeMs  float64
	CreatedAt      time.Time
}

// RecordWriter persists the RoutingRecord emitted by a selection, before
// the selection is returned to the caller.
type RecordWriter interface {
	CreateRoutingRecord(ctx context.Context, rec RoutingRecord) error
}

// Selector ranks scored candidates and picks one (§4.5).
type Selector struct {
	estimates EstimateStore
	records   RecordWriter
}

// New creates a Selector backed by estimates for time/cost lookups and
// records for RoutingRecord persistence.
func New(estimates EstimateStore, records RecordWriter) *Selector {
	return &Selector{estimates: estimates, records: records}
}

// Select picks the best candidate, in the process persisting a
// RoutingRecord so a later outcome report can join on routing_id.
func (s *Selector) Select(ctx context.Context, t task.Context, candidates []Candidate) (AgentSelection, error) {
	start := time.Now()

	if len(candidates) == 0 {
		return AgentSelection{}, routererrors.New(routererrors.KindNoCapableAgent, "Selector.Select", nil)
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score.Overall > sorted[j].Score.Overall
	})

	chosen := sorted[0]

	var fallbacks []string
	for i := 1; i < len(sorted) && i <= 3; i++ {
		fallbacks = append(fallbacks, sorted[i].AgentID)
	}

	completionSeconds := s.estimateCompletion(ctx, t, chosen)
	costCents := s.estimateCost(ctx, t, chosen)

	routingID := uuid.NewString()
	selection := AgentSelection{
		RoutingID:                  routingID,
		AgentID:                    chosen.AgentID,
		AgentName:                  chosen.AgentName,
		Confidence:                 clamp01(chosen.Score.Overall),
		Reason:                     buildReason(chosen.Score, string(t.Complexity)),
		Fallbacks:                  fallbacks,
		EstimatedCompletionSeconds: completionSeconds,
		EstimatedCostCents:         costCents,
		LoadLevelAtSelection:       "", // set by the caller, which owns the LoadTracker
		SelectedAt:                 time.Now(),
		ScoreBreakdown:             chosen.Score,
	}

	record := RoutingRecord{
		RoutingID:      routingID,
		AgentID:        chosen.AgentID,
		TaskType:       t.TaskType,
		Complexity:     string(t.Complexity),
		SelectionScore: chosen.Score.Overall,
		RoutingTimeMs:  float64(time.Since(start).Microseconds()) / 1000.0,
		CreatedAt:      selection.SelectedAt,
	}
	if s.records != nil {
		if err := s.records.CreateRoutingRecord(ctx, record); err != nil {
			return AgentSelection{}, routererrors.New(routererrors.KindPersistenceUnavailable, "Selector.Select", err)
		}
	}

	return selection, nil
}

func (s *Selector) estimateCompletion(ctx context.Context, t task.Context, c Candidate) float64 {
	base := complexityDefaultSeconds[string(t.Complexity)]
	if base == 0 {
		base = complexityDefaultSeconds["MODERATE"]
	}
	if s.estimates != nil {
		if mean, found, err := s.estimates.MeanCompletionSeconds14Day(ctx, c.AgentID, t.Key()); err == nil && found {
			base = mean
		}
	}
	return base * (1 + 0.1*float64(c.LoadCount))
}

func (s *Selector) estimateCost(ctx context.Context, t task.Context, c Candidate) float64 {
	base := complexityDefaultCostCents[string(t.Complexity)]
	if base == 0 {
		base = complexityDefaultCostCents["MODERATE"]
	}
	if s.estimates != nil {
		if mean, found, err := s.estimates.MeanCostCents14Day(ctx, c.AgentID, t.Key()); err == nil && found {
			base = mean
		}
	}
	return base
}

// buildReason assembles a human-readable rationale from up to three
// qualifying signals, defaulting to "best available option".
func buildReason(sc scorer.Score, complexity string) string {
	var parts []string
	if sc.Reliability >= 0.9 {
		parts = append(parts, fmt.Sprintf("high reliability (%.0f%%)", sc.Reliability*100))
	}
	if sc.Performance >= 0.8 {
		parts = append(parts, "excellent response time")
	}
	if sc.CostEfficiency >= 0.8 {
		parts = append(parts, "cost efficient")
	}
	if sc.Load >= 0.7 {
		parts = append(parts, "low current load")
	}
	if sc.Historical >= 0.8 {
		parts = append(parts, fmt.Sprintf("strong performance on similar %s tasks", complexity))
	}

	if len(parts) > 3 {
		parts = parts[:3]
	}
	if len(parts) == 0 {
		return "Selected for best available option"
	}

	joined := parts[0]
	for i := 1; i < len(parts); i++ {
		if i == len(parts)-1 {
			joined += " and " + parts[i]
		} else {
			joined += ", " + parts[i]
		}
	}
	return "Selected for " + joined
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
