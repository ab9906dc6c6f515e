package routererrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSetsDefaultRetryPolicy(t *testing.T) {
	persistErr := New(KindPersistenceUnavailable, "store.Save", errors.New("connection refused"))
	assert.True(t, persistErr.Retryable)

	noAgentErr := New(KindNoCapableAgent, "selector.Select", nil)
	assert.False(t, noAgentErr.Retryable)
}

func TestErrorUnwrapsAndFormats(t *testing.T) {
	wrapped := errors.New("boom")
	re := New(KindInternal, "scorer.Score", wrapped)

	assert.ErrorIs(t, re, wrapped)
	assert.Contains(t, re.Error(), "scorer.Score")
	assert.Contains(t, re.Error(), "internal_error")
}

func TestIsHelpersMatchKind(t *testing.T) {
	re := New(KindAllBreakersOpen, "selector.Select", nil)
	var generic error = re

	assert.True(t, IsAllBreakersOpen(generic))
	assert.False(t, IsNoCapableAgent(generic))
	assert.False(t, IsRoutingTimeout(errors.New("not a router error")))
}

func TestWithContextAttachesFields(t *testing.T) {
	re := New(KindOptimizationUnderflow, "learning.Optimize", nil).
		WithContext("agent_id", "agent-1").
		WithContext("sample_size", 3)

	assert.Equal(t, "agent-1", re.Context["agent_id"])
	assert.Equal(t, 3, re.Context["sample_size"])
}

func TestRetryableReadsThroughRouterError(t *testing.T) {
	re := New(KindRoutingTimeout, "intelligent.Route", nil)
	assert.True(t, Retryable(re))
	assert.False(t, Retryable(errors.New("plain error")))
}
