// Package intelligent implements IntelligentRouter (§4.9): a thin
// composer over Selector and LearningEngine that overrides the base pick
// when specialization, routing-weight, or success-prediction signals
// suggest a better agent, then assembles a human-readable explanation.
package intelligent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/learning"
	"github.com/developer-mesh/agent-router/internal/router/selector"
	"github.com/developer-mesh/agent-router/internal/router/task"
)

const predictionThreshold = 0.6
const maxPredictionAlternatives = 10

// Result is the EnhancedRoutingResult of §6.
type Result struct {
	Selection              selector.AgentSelection
	Prediction             learning.SuccessPrediction
	LearningInsights       map[string]interface{}
	OptimizationConfidence float64
	Alternatives           []string
	Explanation            string
}

// Selector is the subset of selector.Selector the router composes over.
type Selector interface {
	Select(ctx context.Context, t task.Context, candidates []selector.Candidate) (selector.AgentSelection, error)
}

// Learning is the subset of learning.Engine the router consults.
type Learning interface {
	SpecializationsForTaskType(taskType string) []learning.Specialization
	Weight(agentID, key string) float64
	Predict(ctx context.Context, taskType, complexity, agentID string, priority int, deadline *time.Time) (learning.SuccessPrediction, error)
}

// Router composes Selector and LearningEngine into the enhanced result.
type Router struct {
	selector Selector
	learning Learning
	breakers *breaker.Manager
	enabled  bool
}

// New creates an IntelligentRouter. learningEnabled toggles steps 2-4;
// when false the router is a pass-through over Selector and no prediction
// is computed (the result's Prediction is left at its zero value).
func New(sel Selector, eng Learning, breakers *breaker.Manager, learningEnabled bool) *Router {
	return &Router{selector: sel, learning: eng, breakers: breakers, enabled: learningEnabled}
}

// Route runs the 5-step composition described in §4.9 over a candidate
// set already filtered by Registry + CircuitBreaker and scored by Scorer.
func (r *Router) Route(ctx context.Context, t task.Context, candidates []selector.Candidate) (Result, error) {
	base, err := r.selector.Select(ctx, t, candidates)
	if err != nil {
		return Result{}, err
	}

	byAgent := make(map[string]selector.Candidate, len(candidates))
	for _, c := range candidates {
		byAgent[c.AgentID] = c
	}

	chosen := base.AgentID
	confidence := base.Confidence
	optimizationType := ""
	var gain float64

	if r.enabled && r.learning != nil {
		if alt, adv, ok := r.bestSpecializationAlternative(t, chosen, byAgent); ok {
			chosen = alt
			confidence = clamp01(confidence + minF(1, adv))
			optimizationType = "specialization_match"
			gain = adv
		} else if r.learning.Weight(chosen, t.Key()) < 0.4 {
			if alt, ok := r.bestWeightAlternative(t, chosen, byAgent); ok {
				chosen = alt
				optimizationType = "routing_weight"
				gain = r.learning.Weight(alt, t.Key()) - r.learning.Weight(base.AgentID, t.Key())
			}
		}
	}

	var prediction learning.SuccessPrediction
	swappedForPrediction := false
	if r.enabled && r.learning != nil {
		prediction, _ = r.learning.Predict(ctx, t.TaskType, string(t.Complexity), chosen, t.Priority, t.Deadline)
		if prediction.PredictedRate < predictionThreshold {
			if alt, altPred, ok := r.bestPredictedAlternative(ctx, t, chosen, byAgent); ok {
				chosen = alt
				prediction = altPred
				swappedForPrediction = true
			}
		}
	}

	finalSelection := base
	if chosen != base.AgentID {
		if c, ok := byAgent[chosen]; ok {
			finalSelection = rebuildSelection(base, c)
		}
	}
	finalSelection.Confidence = confidence

	alternatives := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.AgentID != chosen {
			alternatives = append(alternatives, c.AgentID)
		}
	}
	sort.Strings(alternatives)

	explanation := buildExplanation(finalSelection.Reason, optimizationType, gain, prediction, swappedForPrediction)

	insights := map[string]interface{}{
		"optimization_type": optimizationType,
		"base_agent_id":     base.AgentID,
		"final_agent_id":    chosen,
	}

	return Result{
		Selection:              finalSelection,
		Prediction:             prediction,
		LearningInsights:       insights,
		OptimizationConfidence: confidence,
		Alternatives:           alternatives,
		Explanation:            explanation,
	}, nil
}

// bestSpecializationAlternative implements step 2: any other active,
// healthy agent whose specialization in this task_type shows a positive
// advantage over the base pick wins the swap.
func (r *Router) bestSpecializationAlternative(t task.Context, base string, byAgent map[string]selector.Candidate) (string, float64, bool) {
	specs := r.learning.SpecializationsForTaskType(t.TaskType)
	bestAgent := ""
	bestAdvantage := 0.0
	for _, s := range specs {
		if s.AgentID == base {
			continue
		}
		if _, ok := byAgent[s.AgentID]; !ok {
			continue
		}
		if !r.isHealthy(s.AgentID) {
			continue
		}
		if s.PerformanceAdvantage > 0 && s.PerformanceAdvantage > bestAdvantage {
			bestAgent = s.AgentID
			bestAdvantage = s.PerformanceAdvantage
		}
	}
	if bestAgent == "" {
		return "", 0, false
	}
	return bestAgent, bestAdvantage, true
}

// bestWeightAlternative implements step 3: among healthy candidates with
// W[agent][task_key] > 0.6, pick the highest-weighted one.
func (r *Router) bestWeightAlternative(t task.Context, base string, byAgent map[string]selector.Candidate) (string, bool) {
	bestAgent := ""
	bestWeight := 0.6
	for agentID := range byAgent {
		if agentID == base || !r.isHealthy(agentID) {
			continue
		}
		w := r.learning.Weight(agentID, t.Key())
		if w > bestWeight {
			bestAgent = agentID
			bestWeight = w
		}
	}
	if bestAgent == "" {
		return "", false
	}
	return bestAgent, true
}

// bestPredictedAlternative implements step 4: scan up to 10 other active
// agents, returning the highest predicted rate exceeding the threshold.
func (r *Router) bestPredictedAlternative(ctx context.Context, t task.Context, base string, byAgent map[string]selector.Candidate) (string, learning.SuccessPrediction, bool) {
	agentIDs := make([]string, 0, len(byAgent))
	for id := range byAgent {
		if id != base && r.isHealthy(id) {
			agentIDs = append(agentIDs, id)
		}
	}
	sort.Strings(agentIDs)
	if len(agentIDs) > maxPredictionAlternatives {
		agentIDs = agentIDs[:maxPredictionAlternatives]
	}

	bestAgent := ""
	var bestPred learning.SuccessPrediction
	bestRate := predictionThreshold
	for _, id := range agentIDs {
		pred, err := r.learning.Predict(ctx, t.TaskType, string(t.Complexity), id, t.Priority, t.Deadline)
		if err != nil {
			continue
		}
		if pred.PredictedRate > bestRate {
			bestAgent = id
			bestPred = pred
			bestRate = pred.PredictedRate
		}
	}
	if bestAgent == "" {
		return "", learning.SuccessPrediction{}, false
	}
	return bestAgent, bestPred, true
}

func (r *Router) isHealthy(agentID string) bool {
	if r.breakers == nil {
		return true
	}
	return r.breakers.Get(agentID).State() != breaker.StateOpen
}

// rebuildSelection reapplies the chosen candidate's score to the base
// selection shape, keeping routing_id and timing metadata from Selector.
func rebuildSelection(base selector.AgentSelection, c selector.Candidate) selector.AgentSelection {
	out := base
	out.AgentID = c.AgentID
	out.AgentName = c.AgentName
	out.ScoreBreakdown = c.Score
	return out
}

func buildExplanation(baseReason, optimizationType string, gain float64, pred learning.SuccessPrediction, swapped bool) string {
	explanation := baseReason
	switch optimizationType {
	case "specialization_match":
		explanation += fmt.Sprintf("; specialization match (+%.0f%% advantage)", gain*100)
	case "routing_weight":
		explanation += fmt.Sprintf("; routing weight favors this agent (+%.2f)", gain)
	}
	if pred.PredictionModel != "" {
		explanation += fmt.Sprintf("; predicted success %.0f%%", pred.PredictedRate*100)
	}
	for i, rf := range pred.RiskFactors {
		if i >= 2 {
			break
		}
		explanation += fmt.Sprintf("; risk: %s", rf)
	}
	if swapped {
		explanation += " (alternative due to low success prediction)"
	}
	return explanation
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

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
