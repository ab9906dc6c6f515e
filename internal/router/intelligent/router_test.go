package intelligent

import (
	"context"
	"testing"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/learning"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/selector"
	"github.com/developer-mesh/agent-router/internal/router/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSelector struct{ pick string }

func (f *fakeSelector) Select(_ context.Context, _ task.Context, candidates []selector.Candidate) (selector.AgentSelection, error) {
	for _, c := range candidates {
		if c.AgentID == f.pick {
			return selector.AgentSelection{AgentID: c.AgentID, Confidence: c.Score.Overall, Reason: "Selected for best available option", ScoreBreakdown: c.Score}, nil
		}
	}
	return selector.AgentSelection{}, assert.AnError
}

type fakeLearning struct {
	specs       map[string][]learning.Specialization
	weights     map[string]float64
	predictions map[string]learning.SuccessPrediction
}

func (f *fakeLearning) SpecializationsForTaskType(taskType string) []learning.Specialization {
	return f.specs[taskType]
}

func (f *fakeLearning) Weight(agentID, key string) float64 {
	if v, ok := f.weights[agentID+"|"+key]; ok {
		return v
	}
	return 0.5
}

func (f *fakeLearning) Predict(_ context.Context, taskType, complexity, agentID string, _ int, _ *time.Time) (learning.SuccessPrediction, error) {
	if p, ok := f.predictions[agentID]; ok {
		return p, nil
	}
	return learning.SuccessPrediction{AgentID: agentID, PredictedRate: 0.8, PredictionModel: "default"}, nil
}

func candidates() []selector.Candidate {
	return []selector.Candidate{
		{AgentID: "a1", Score: scorer.Score{Overall: 0.7}},
		{AgentID: "a2", Score: scorer.Score{Overall: 0.6}},
	}
}

func TestRouteAppliesSpecializationOverride(t *testing.T) {
	sel := &fakeSelector{pick: "a1"}
	eng := &fakeLearning{
		specs: map[string][]learning.Specialization{
			"summarize": {{AgentID: "a2", PerformanceAdvantage: 0.3, IsActive: true}},
		},
		predictions: map[string]learning.SuccessPrediction{
			"a2": {AgentID: "a2", PredictedRate: 0.9, PredictionModel: "test"},
		},
	}
	r := New(sel, eng, breaker.NewManager(breaker.DefaultConfig(), nil, nil), true)

	result, err := r.Route(context.Background(), task.Context{TaskType: "summarize", Complexity: task.ComplexityModerate}, candidates())
	require.NoError(t, err)

	assert.Equal(t, "a2", result.Selection.AgentID)
	assert.Equal(t, "specialization_match", result.LearningInsights["optimization_type"])
	assert.Contains(t, result.Alternatives, "a1")
}

func TestRouteSwapsOnLowPrediction(t *testing.T) {
	sel := &fakeSelector{pick: "a1"}
	eng := &fakeLearning{
		predictions: map[string]learning.SuccessPrediction{
			"a1": {AgentID: "a1", PredictedRate: 0.3, PredictionModel: "test"},
			"a2": {AgentID: "a2", PredictedRate: 0.75, PredictionModel: "test"},
		},
	}
	r := New(sel, eng, breaker.NewManager(breaker.DefaultConfig(), nil, nil), true)

	result, err := r.Route(context.Background(), task.Context{TaskType: "summarize", Complexity: task.ComplexityModerate}, candidates())
	require.NoError(t, err)

	assert.Equal(t, "a2", result.Selection.AgentID)
	assert.Contains(t, result.Explanation, "alternative due to low success prediction")
}

func TestRoutePassThroughWhenLearningDisabled(t *testing.T) {
	sel := &fakeSelector{pick: "a1"}
	r := New(sel, &fakeLearning{}, breaker.NewManager(breaker.DefaultConfig(), nil, nil), false)

	result, err := r.Route(context.Background(), task.Context{TaskType: "summarize", Complexity: task.ComplexityModerate}, candidates())
	require.NoError(t, err)

	assert.Equal(t, "a1", result.Selection.AgentID)
	assert.Equal(t, "", result.Prediction.PredictionModel)
}

func TestRouteSkipsOpenBreakerAlternatives(t *testing.T) {
	sel := &fakeSelector{pick: "a1"}
	eng := &fakeLearning{
		specs: map[string][]learning.Specialization{
			"summarize": {{AgentID: "a2", PerformanceAdvantage: 0.3, IsActive: true}},
		},
	}
	breakers := breaker.NewManager(breaker.DefaultConfig(), nil, nil)
	for i := 0; i < breaker.DefaultConfig().FailureThreshold; i++ {
		breakers.RecordFailure("a2")
	}

	r := New(sel, eng, breakers, true)
	result, err := r.Route(context.Background(), task.Context{TaskType: "summarize", Complexity: task.ComplexityModerate}, candidates())
	require.NoError(t, err)

	assert.Equal(t, "a1", result.Selection.AgentID, "an open-breaker specialization alternative must not win the swap")
}
