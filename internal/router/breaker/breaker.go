// Package breaker implements the per-agent circuit breaker gate described
// in §4.2 of the routing specification: a CLOSED/OPEN/HALF_OPEN state
// machine with explicit failure/success counters and a next-retry deadline.
package breaker

import (
	"sync"
	"time"

	"github.com/developer-mesh/agent-router/pkg/observability"
)

// State is one of the three circuit breaker states. No other value is
// ever observed.
type State string

// Circuit breaker states.
const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds the thresholds governing a breaker's transitions.
type Config struct {
	FailureThreshold        int
	RecoveryTimeout         time.Duration
	HalfOpenSuccessRequired int
}

// DefaultConfig returns the §6 defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:        5,
		RecoveryTimeout:         60 * time.Second,
		HalfOpenSuccessRequired: 3,
	}
}

// Breaker is a single agent's circuit breaker state.
type Breaker struct {
	mu sync.Mutex

	state         State
	failureCount  int
	successCount  int
	lastFailure   time.Time
	nextRetryTime time.Time

	cfg Config
}

func newBreaker(cfg Config) *Breaker {
	return &Breaker{state: StateClosed, cfg: cfg}
}

// State returns the breaker's current state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's fields for persistence/inspection.
type Snapshot struct {
	State         State
	FailureCount  int
	SuccessCount  int
	LastFailure   time.Time
	NextRetryTime time.Time
}

// Snapshot returns a copy of the breaker's current fields.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		LastFailure:   b.lastFailure,
		NextRetryTime: b.nextRetryTime,
	}
}

// Allow reports whether the breaker currently permits candidacy, lazily
// performing the OPEN -> HALF_OPEN transition if the retry deadline has
// passed. This is the mechanism behind Manager.Filter.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if !now.Before(b.nextRetryTime) {
			b.state = StateHalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess increments the success counter. Per §4.6, this never
// transitions the breaker directly to CLOSED; the BreakerTransitions
// control loop applies that transition on its scan cadence.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successCount++
}

// RecordFailure increments the failure counter and, when a threshold
// crossing requires arming next_retry_time, performs that transition
// inline (the one exception to "transitions happen in the background
// loop" called out in §4.6).
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.nextRetryTime = now.Add(b.cfg.RecoveryTimeout)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successCount = 0
		b.nextRetryTime = now.Add(b.cfg.RecoveryTimeout)
	}
}

// scanTransition applies the scanning transitions owned by the
// BreakerTransitions control loop: CLOSED -> OPEN (belt-and-suspenders
// re-check) and HALF_OPEN -> CLOSED.
func (b *Breaker) scanTransition(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.nextRetryTime = now.Add(b.cfg.RecoveryTimeout)
		}
	case StateHalfOpen:
		if b.successCount >= b.cfg.HalfOpenSuccessRequired {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// reset returns the breaker to CLOSED with zeroed counters.
func (b *Breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}

// Manager owns one Breaker per agent id, creating CLOSED breakers lazily
// so an agent with no breaker row behaves as CLOSED per §4.2.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewManager creates a breaker manager using cfg for every newly created
// per-agent breaker.
func NewManager(cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Manager {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &Manager{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   logger.WithPrefix("breaker"),
		metrics:  metrics,
	}
}

// Get returns the breaker for agentID, creating a CLOSED one on first use.
func (m *Manager) Get(agentID string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[agentID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[agentID]; ok {
		return b
	}
	b = newBreaker(m.cfg)
	m.breakers[agentID] = b
	return b
}

// Filter keeps only the agent ids whose breaker currently allows
// candidacy, lazily applying OPEN -> HALF_OPEN as it scans.
func (m *Manager) Filter(agentIDs []string) []string {
	now := time.Now()
	eligible := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		b := m.Get(id)
		before := b.State()
		if b.Allow(now) {
			eligible = append(eligible, id)
			if after := b.State(); after != before {
				m.metrics.RecordCounter("circuit_breaker_transitions_total", 1, map[string]string{
					"agent_id": id, "from": string(before), "to": string(after),
				})
			}
		}
	}
	return eligible
}

// RecordSuccess records a successful outcome for agentID.
func (m *Manager) RecordSuccess(agentID string) {
	m.Get(agentID).RecordSuccess()
}

// RecordFailure records a failed outcome for agentID.
func (m *Manager) RecordFailure(agentID string) {
	m.Get(agentID).RecordFailure(time.Now())
}

// ScanTransitions applies the BreakerTransitions control loop's scanning
// rules across every known breaker.
func (m *Manager) ScanTransitions() {
	m.mu.RLock()
	snapshot := make([]*Breaker, 0, len(m.breakers))
	ids := make([]string, 0, len(m.breakers))
	for id, b := range m.breakers {
		snapshot = append(snapshot, b)
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	now := time.Now()
	for i, b := range snapshot {
		before := b.State()
		b.scanTransition(now)
		if after := b.State(); after != before {
			m.metrics.RecordCounter("circuit_breaker_transitions_total", 1, map[string]string{
				"agent_id": ids[i], "from": string(before), "to": string(after),
			})
			m.logger.Infof("breaker %s transitioned %s -> %s", ids[i], before, after)
		}
	}
}

// Reset resets a single agent's breaker to CLOSED.
func (m *Manager) Reset(agentID string) {
	m.Get(agentID).reset()
}

// AllStates returns a snapshot of every known breaker, keyed by agent id.
func (m *Manager) AllStates() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Snapshot, len(m.breakers))
	for id, b := range m.breakers {
		out[id] = b.Snapshot()
	}
	return out
}
