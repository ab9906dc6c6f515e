package scorer

import (
	"context"
	"testing"

	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/developer-mesh/agent-router/internal/router/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	aggregates map[string]Aggregate7Day
	taskRates  map[string]float64
}

func (f *fakeHistory) Aggregate7Day(_ context.Context, agentID string) (Aggregate7Day, error) {
	if agg, ok := f.aggregates[agentID]; ok {
		return agg, nil
	}
	return Aggregate7Day{}, nil
}

func (f *fakeHistory) TaskSuccessRate30Day(_ context.Context, agentID string, taskKey string) (float64, bool, error) {
	rate, ok := f.taskRates[agentID+"|"+taskKey]
	return rate, ok, nil
}

func TestScoreNoHistoryUsesDefaults(t *testing.T) {
	tracker := load.NewTracker(10)
	s := New(&fakeHistory{}, tracker)

	sc, err := s.Score(context.Background(), "a1", task.Context{TaskType: "summarize", Complexity: task.ComplexityModerate, Priority: 5})
	require.NoError(t, err)

	assert.InDelta(t, 0.8, sc.Reliability, 1e-9)
	assert.InDelta(t, 1.0, sc.CostEfficiency, 1e-9)
	assert.GreaterOrEqual(t, sc.Overall, 0.0)
	assert.LessOrEqual(t, sc.Overall, 1.0)
}

func TestScoreEveryFieldClamped(t *testing.T) {
	tracker := load.NewTracker(10)
	hist := &fakeHistory{aggregates: map[string]Aggregate7Day{
		"a1": {Found: true, SuccessRate: 5, AvgExecutionMs: -1000, AvgCostCents: 0.001},
	}}
	s := New(hist, tracker)

	sc, err := s.Score(context.Background(), "a1", task.Context{TaskType: "x", Complexity: task.ComplexityModerate, Priority: 5})
	require.NoError(t, err)

	for _, v := range []float64{sc.Reliability, sc.Performance, sc.CostEfficiency, sc.CapabilityMatch, sc.Historical, sc.Overall} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestScoreLoadPenaltyBands(t *testing.T) {
	tracker := load.NewTracker(10)
	hist := &fakeHistory{aggregates: map[string]Aggregate7Day{
		"a1": {Found: true, SuccessRate: 0.8, AvgExecutionMs: 1000, AvgCostCents: 10},
		"a2": {Found: true, SuccessRate: 0.8, AvgExecutionMs: 1000, AvgCostCents: 10},
	}}
	s := New(hist, tracker)

	for i := 0; i < 9; i++ {
		tracker.Increment("a1")
	}

	scA1, err := s.Score(context.Background(), "a1", task.Context{Complexity: task.ComplexityModerate, Priority: 5})
	require.NoError(t, err)
	scA2, err := s.Score(context.Background(), "a2", task.Context{Complexity: task.ComplexityModerate, Priority: 5})
	require.NoError(t, err)

	assert.Less(t, scA1.Overall, scA2.Overall)
}

func TestScoreCriticalComplexityFavorsReliability(t *testing.T) {
	tracker := load.NewTracker(10)
	hist := &fakeHistory{aggregates: map[string]Aggregate7Day{
		"reliable": {Found: true, SuccessRate: 0.95, AvgExecutionMs: 3000, AvgCostCents: 30},
		"fast":     {Found: true, SuccessRate: 0.6, AvgExecutionMs: 100, AvgCostCents: 5},
	}}
	s := New(hist, tracker)

	critical := task.Context{Complexity: task.ComplexityCritical, Priority: 5}
	scReliable, err := s.Score(context.Background(), "reliable", critical)
	require.NoError(t, err)
	scFast, err := s.Score(context.Background(), "fast", critical)
	require.NoError(t, err)

	assert.Greater(t, scReliable.Overall, scFast.Overall)
}
