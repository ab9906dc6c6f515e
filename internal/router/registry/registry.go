package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/routererrors"
	"github.com/developer-mesh/agent-router/pkg/observability"
)

// TaskContext is the subset of routing input the Registry needs to build a
// candidate set: preferred/required agent and capability hints.
type TaskContext struct {
	PreferredAgents      []string
	RequiredCapabilities []Capability
}

// capabilityPriority records the priority an agent declared for a capability,
// used to order candidates when required_capabilities narrows the set.
type capabilityPriority map[Capability]int

// Registry holds the set of known agents and answers candidate-set queries.
// It is the exclusive owner of Agent rows (§3 ownership rule).
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	priority map[string]capabilityPriority

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates an empty Registry.
func New(logger observability.Logger, metrics observability.MetricsClient) *Registry {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &Registry{
		agents:   make(map[string]*Agent),
		priority: make(map[string]capabilityPriority),
		logger:   logger.WithPrefix("registry"),
		metrics:  metrics,
	}
}

// Register adds a new agent in the offline->starting->active lifecycle,
// landing it directly in the ACTIVE state, ready for candidacy.
func (r *Registry) Register(spec Spec, capabilityPriorities map[Capability]int) (*Agent, error) {
	if err := spec.validate(); err != nil {
		return nil, routererrors.New(routererrors.KindInternal, "Registry.Register", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := spec.Name
	if name == "" {
		name = spec.ID
	}

	now := time.Now()
	agent := &Agent{
		ID:           spec.ID,
		Name:         name,
		Capabilities: spec.Capabilities,
		Capacity:     spec.Capacity,
		internal:     internalActive,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	r.agents[spec.ID] = agent

	prio := make(capabilityPriority, len(capabilityPriorities))
	for cap, p := range capabilityPriorities {
		prio[cap] = p
	}
	r.priority[spec.ID] = prio

	r.metrics.RecordCounter("registry_agents_registered_total", 1, map[string]string{"agent_id": spec.ID})
	return agent, nil
}

// Deregister removes an agent from the registry entirely.
func (r *Registry) Deregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
	delete(r.priority, agentID)
}

// Get returns the agent by id, or nil if unknown.
func (r *Registry) Get(agentID string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentID]
}

// setInternalState transitions the agent to a new internal lifecycle state,
// rejecting transitions not permitted by the lifecycle table.
func (r *Registry) setInternalState(agentID string, target internalState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return routererrors.New(routererrors.KindInternal, "Registry.setInternalState", nil).
			WithContext("agent_id", agentID)
	}
	if !agent.internal.canTransitionTo(target) {
		r.metrics.RecordCounter("registry_invalid_transition_total", 1, map[string]string{
			"from": string(agent.internal), "to": string(target),
		})
		return routererrors.New(routererrors.KindInternal, "Registry.setInternalState", nil).
			WithContext("from", string(agent.internal)).WithContext("to", string(target))
	}
	agent.internal = target
	agent.UpdatedAt = time.Now()
	return nil
}

// MarkActive transitions the agent to ACTIVE.
func (r *Registry) MarkActive(agentID string) error { return r.setInternalState(agentID, internalActive) }

// MarkRateLimited transitions the agent to RATE_LIMITED.
func (r *Registry) MarkRateLimited(agentID string) error {
	return r.setInternalState(agentID, internalRateLimited)
}

// MarkFailed transitions the agent to the FAILED wire state (internal error).
func (r *Registry) MarkFailed(agentID string) error { return r.setInternalState(agentID, internalError) }

// MarkInactive transitions the agent through draining into INACTIVE.
func (r *Registry) MarkInactive(agentID string) error {
	r.mu.Lock()
	agent, ok := r.agents[agentID]
	r.mu.Unlock()
	if !ok {
		return routererrors.New(routererrors.KindInternal, "Registry.MarkInactive", nil).WithContext("agent_id", agentID)
	}
	if agent.internal == internalActive {
		if err := r.setInternalState(agentID, internalDraining); err != nil {
			return err
		}
	}
	return r.setInternalState(agentID, internalOffline)
}

// Candidates implements the §4.1 candidate-set rule.
func (r *Registry) Candidates(_ context.Context, task TaskContext) ([]*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(task.PreferredAgents) > 0 {
		var preferred []*Agent
		for _, id := range task.PreferredAgents {
			if a, ok := r.agents[id]; ok && a.IsOperational() {
				preferred = append(preferred, a)
			}
		}
		if len(preferred) > 0 {
			return preferred, nil
		}
	}

	var pool []*Agent
	if len(task.RequiredCapabilities) > 0 {
		for _, a := range r.agents {
			if !a.IsOperational() {
				continue
			}
			if hasAllCapabilities(a, task.RequiredCapabilities) {
				pool = append(pool, a)
			}
		}
		sort.Slice(pool, func(i, j int) bool {
			pi := r.maxPriority(pool[i].ID, task.RequiredCapabilities)
			pj := r.maxPriority(pool[j].ID, task.RequiredCapabilities)
			if pi != pj {
				return pi > pj
			}
			return pool[i].RegisteredAt.Before(pool[j].RegisteredAt)
		})
	} else {
		for _, a := range r.agents {
			if a.IsOperational() {
				pool = append(pool, a)
			}
		}
		sort.Slice(pool, func(i, j int) bool {
			return pool[i].RegisteredAt.Before(pool[j].RegisteredAt)
		})
	}

	if len(pool) == 0 {
		return nil, routererrors.New(routererrors.KindNoCapableAgent, "Registry.Candidates", nil)
	}
	return pool, nil
}

// ActiveAgentIDs returns the ids of every ACTIVE agent, for the control
// loops that sweep all operational agents rather than answering a single
// routing query.
func (r *Registry) ActiveAgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id, a := range r.agents {
		if a.IsOperational() {
			ids = append(ids, id)
		}
	}
	return ids
}

func hasAllCapabilities(a *Agent, required []Capability) bool {
	for _, req := range required {
		if !a.HasCapability(req) {
			return false
		}
	}
	return true
}

func (r *Registry) maxPriority(agentID string, caps []Capability) int {
	prios := r.priority[agentID]
	max := 0
	for _, c := range caps {
		if p, ok := prios[c]; ok && p > max {
			max = p
		}
	}
	return max
}
