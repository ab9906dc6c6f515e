package selector

import (
	"context"
	"testing"

	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordWriter struct {
	records []RoutingRecord
}

func (f *fakeRecordWriter) CreateRoutingRecord(_ context.Context, rec RoutingRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func TestSelectHappyPathNoHistory(t *testing.T) {
	writer := &fakeRecordWriter{}
	sel := New(nil, writer)

	candidates := []Candidate{{
		AgentID: "a1",
		Score: scorer.Score{
			Reliability: 0.8, Performance: 0.82, CostEfficiency: 1.0,
			CapabilityMatch: 0.8, Load: 1.0, Historical: 0.8, Overall: 0.854,
		},
	}}

	selection, err := sel.Select(context.Background(), task.Context{TaskType: "summarize", Complexity: task.ComplexityModerate, Priority: 5}, candidates)
	require.NoError(t, err)

	assert.Equal(t, "a1", selection.AgentID)
	assert.Empty(t, selection.Fallbacks)
	assert.Equal(t, 10.0, selection.EstimatedCompletionSeconds)
	assert.Equal(t, 5.0, selection.EstimatedCostCents)
	assert.Contains(t, selection.Reason, "Selected for")
	require.Len(t, writer.records, 1)
	assert.Equal(t, "a1", writer.records[0].AgentID)
	assert.NotEmpty(t, selection.RoutingID)
}

func TestSelectOrdersByOverallDescendingAndLimitsFallbacksToThree(t *testing.T) {
	sel := New(nil, &fakeRecordWriter{})

	candidates := []Candidate{
		{AgentID: "low", Score: scorer.Score{Overall: 0.1}},
		{AgentID: "best", Score: scorer.Score{Overall: 0.9}},
		{AgentID: "mid1", Score: scorer.Score{Overall: 0.5}},
		{AgentID: "mid2", Score: scorer.Score{Overall: 0.4}},
		{AgentID: "mid3", Score: scorer.Score{Overall: 0.3}},
	}

	selection, err := sel.Select(context.Background(), task.Context{Complexity: task.ComplexityModerate}, candidates)
	require.NoError(t, err)

	assert.Equal(t, "best", selection.AgentID)
	assert.Equal(t, []string{"mid1", "mid2", "mid3"}, selection.Fallbacks)
}

func TestSelectEmptyCandidatesReturnsNoCapableAgent(t *testing.T) {
	sel := New(nil, &fakeRecordWriter{})
	_, err := sel.Select(context.Background(), task.Context{}, nil)
	assert.Error(t, err)
}

func TestSelectLoadCountInflatesCompletionEstimate(t *testing.T) {
	sel := New(nil, &fakeRecordWriter{})
	candidates := []Candidate{{AgentID: "a1", Score: scorer.Score{Overall: 0.8}, LoadCount: 3}}

	selection, err := sel.Select(context.Background(), task.Context{Complexity: task.ComplexityModerate}, candidates)
	require.NoError(t, err)
	assert.InDelta(t, 13.0, selection.EstimatedCompletionSeconds, 1e-9)
}
