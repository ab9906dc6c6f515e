package outcome

import (
	"context"
	"errors"
	"testing"

	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	agentID, taskType, complexity string
	recorded                      map[string]bool
}

func newFakeLookup(agentID string) *fakeLookup {
	return &fakeLookup{agentID: agentID, taskType: "summarize", complexity: "MODERATE", recorded: map[string]bool{}}
}

func (f *fakeLookup) Lookup(_ context.Context, routingID string) (string, string, string, bool, error) {
	if routingID == "unknown" {
		return "", "", "", false, errors.New("not found")
	}
	return f.agentID, f.taskType, f.complexity, f.recorded[routingID], nil
}

func (f *fakeLookup) MarkRecorded(_ context.Context, routingID string) error {
	if f.recorded[routingID] {
		return errors.New("already recorded")
	}
	f.recorded[routingID] = true
	return nil
}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) Invalidate(_ context.Context, agentID string) error {
	f.invalidated = append(f.invalidated, agentID)
	return nil
}

type fakeDurable struct{ saved []TaskOutcome }

func (f *fakeDurable) SaveOutcome(_ context.Context, o TaskOutcome) error {
	f.saved = append(f.saved, o)
	return nil
}

type fakeLearning struct{ ingested []TaskOutcome }

func (f *fakeLearning) Ingest(o TaskOutcome) { f.ingested = append(f.ingested, o) }

func TestRecordAppliesSideEffectsOnce(t *testing.T) {
	lookup := newFakeLookup("a1")
	breakers := breaker.NewManager(breaker.DefaultConfig(), nil, nil)
	loads := load.NewTracker(10)
	loads.Increment("a1")
	cache := &fakeCache{}
	durable := &fakeDurable{}
	learning := &fakeLearning{}

	r := New(lookup, breakers, loads, cache, durable, learning, nil, nil)

	err := r.Record(context.Background(), Report{RoutingID: "r1", Success: true, ExecutionMs: 500})
	require.NoError(t, err)

	assert.Equal(t, 0, loads.Count("a1"))
	assert.Equal(t, []string{"a1"}, cache.invalidated)
	require.Len(t, durable.saved, 1)
	assert.Equal(t, 1.0, durable.saved[0].SuccessScore)
	require.Len(t, learning.ingested, 1)
}

func TestRecordIsIdempotent(t *testing.T) {
	lookup := newFakeLookup("a1")
	breakers := breaker.NewManager(breaker.DefaultConfig(), nil, nil)
	loads := load.NewTracker(10)
	loads.Increment("a1")
	loads.Increment("a1")
	durable := &fakeDurable{}

	r := New(lookup, breakers, loads, &fakeCache{}, durable, &fakeLearning{}, nil, nil)

	require.NoError(t, r.Record(context.Background(), Report{RoutingID: "r1", Success: true, ExecutionMs: 500}))
	require.NoError(t, r.Record(context.Background(), Report{RoutingID: "r1", Success: true, ExecutionMs: 500}))

	assert.Equal(t, 1, loads.Count("a1"), "second call for the same routing_id must not double-decrement")
	assert.Len(t, durable.saved, 1)
}

func TestRecordUnknownRoutingIDReturnsOutcomeNotFound(t *testing.T) {
	lookup := newFakeLookup("a1")
	r := New(lookup, breaker.NewManager(breaker.DefaultConfig(), nil, nil), load.NewTracker(10), nil, nil, nil, nil, nil)

	err := r.Record(context.Background(), Report{RoutingID: "unknown", Success: true})
	assert.Error(t, err)
}

func TestRecordFailureIncrementsBreakerFailureCount(t *testing.T) {
	lookup := newFakeLookup("a1")
	breakers := breaker.NewManager(breaker.DefaultConfig(), nil, nil)
	r := New(lookup, breakers, load.NewTracker(10), nil, nil, nil, nil, nil)

	require.NoError(t, r.Record(context.Background(), Report{RoutingID: "r1", Success: false, ExecutionMs: 500}))

	snap := breakers.Get("a1").Snapshot()
	assert.Equal(t, 1, snap.FailureCount)
}

func TestSuccessScoreAveragesQualityMetrics(t *testing.T) {
	assert.Equal(t, 1.0, successScore(true, nil))
	assert.Equal(t, 0.0, successScore(false, nil))
	assert.InDelta(t, 0.75, successScore(true, map[string]float64{"a": 0.5}), 1e-9)
}
