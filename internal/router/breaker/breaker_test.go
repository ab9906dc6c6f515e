package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second, HalfOpenSuccessRequired: 3}
}

func TestNewAgentBreakerDefaultsClosed(t *testing.T) {
	m := NewManager(testConfig(), nil, nil)
	assert.Equal(t, StateClosed, m.Get("a1").State())
}

func TestClosedTransitionsToOpenAtThreshold(t *testing.T) {
	m := NewManager(testConfig(), nil, nil)
	for i := 0; i < 4; i++ {
		m.RecordFailure("a1")
	}
	require.Equal(t, StateClosed, m.Get("a1").State())

	m.RecordFailure("a1")
	assert.Equal(t, StateOpen, m.Get("a1").State())
}

func TestFilterRejectsOpenBeforeRetryDeadline(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenSuccessRequired: 3}, nil, nil)
	m.RecordFailure("a1")
	require.Equal(t, StateOpen, m.Get("a1").State())

	eligible := m.Filter([]string{"a1"})
	assert.Empty(t, eligible)
}

func TestFilterTransitionsOpenToHalfOpenAfterDeadline(t *testing.T) {
	cfg := Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, HalfOpenSuccessRequired: 3}
	m := NewManager(cfg, nil, nil)
	m.RecordFailure("a1")
	require.Equal(t, StateOpen, m.Get("a1").State())

	time.Sleep(5 * time.Millisecond)
	eligible := m.Filter([]string{"a1"})
	assert.Equal(t, []string{"a1"}, eligible)
	assert.Equal(t, StateHalfOpen, m.Get("a1").State())
}

func TestHalfOpenReturnsToOpenOnAnyFailure(t *testing.T) {
	cfg := Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, HalfOpenSuccessRequired: 3}
	m := NewManager(cfg, nil, nil)
	m.RecordFailure("a1")
	time.Sleep(5 * time.Millisecond)
	m.Filter([]string{"a1"})
	require.Equal(t, StateHalfOpen, m.Get("a1").State())

	m.RecordFailure("a1")
	assert.Equal(t, StateOpen, m.Get("a1").State())
}

func TestScanTransitionsClosesHalfOpenAtSuccessThreshold(t *testing.T) {
	cfg := Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, HalfOpenSuccessRequired: 3}
	m := NewManager(cfg, nil, nil)
	m.RecordFailure("a1")
	time.Sleep(5 * time.Millisecond)
	m.Filter([]string{"a1"})
	require.Equal(t, StateHalfOpen, m.Get("a1").State())

	m.RecordSuccess("a1")
	m.RecordSuccess("a1")
	m.ScanTransitions()
	require.Equal(t, StateHalfOpen, m.Get("a1").State(), "below threshold should not close yet")

	m.RecordSuccess("a1")
	m.ScanTransitions()
	assert.Equal(t, StateClosed, m.Get("a1").State())

	snap := m.Get("a1").Snapshot()
	assert.Zero(t, snap.FailureCount)
	assert.Zero(t, snap.SuccessCount)
}

func TestFilterKeepsClosedAndHalfOpenOnly(t *testing.T) {
	m := NewManager(testConfig(), nil, nil)
	m.Get("closed")
	for i := 0; i < 5; i++ {
		m.RecordFailure("open")
	}

	eligible := m.Filter([]string{"closed", "open"})
	assert.Equal(t, []string{"closed"}, eligible)
}
