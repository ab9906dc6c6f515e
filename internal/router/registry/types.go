// Package registry holds the set of agents known to the router, their
// declared capabilities, and their current lifecycle state.
package registry

import (
	"fmt"
	"time"
)

// State is the wire-visible lifecycle state of an agent, matching the
// routing specification's four-state model.
type State string

// Agent lifecycle states.
const (
	StateActive      State = "ACTIVE"
	StateInactive    State = "INACTIVE"
	StateFailed      State = "FAILED"
	StateRateLimited State = "RATE_LIMITED"
)

// internalState extends State with transitional states the registry tracks
// internally (startup, draining, maintenance) that all collapse onto
// StateInactive on the wire since the spec only names four states.
type internalState string

const (
	internalOffline     internalState = "offline"
	internalStarting    internalState = "starting"
	internalActive      internalState = "active"
	internalDraining    internalState = "draining"
	internalMaintenance internalState = "maintenance"
	internalError       internalState = "error"
	internalStopping    internalState = "stopping"
	internalRateLimited internalState = "rate_limited"
)

var validInternalTransitions = map[internalState][]internalState{
	internalOffline:     {internalStarting},
	internalStarting:    {internalActive, internalError},
	internalActive:      {internalDraining, internalMaintenance, internalError, internalStopping, internalRateLimited},
	internalRateLimited: {internalActive, internalError, internalStopping},
	internalDraining:    {internalOffline, internalError},
	internalMaintenance: {internalActive, internalOffline, internalStopping},
	internalError:       {internalStopping, internalMaintenance},
	internalStopping:    {internalOffline},
}

// canTransitionTo reports whether a transition between internal states is
// permitted by the lifecycle table above.
func (s internalState) canTransitionTo(target internalState) bool {
	for _, valid := range validInternalTransitions[s] {
		if valid == target {
			return true
		}
	}
	return false
}

// wireState maps the richer internal lifecycle onto the spec's four states.
func (s internalState) wireState() State {
	switch s {
	case internalActive:
		return StateActive
	case internalRateLimited:
		return StateRateLimited
	case internalError:
		return StateFailed
	default:
		return StateInactive
	}
}

// Capability names a task dimension an agent can handle, e.g. "code_review"
// or "data_analysis".
type Capability string

// Agent is a routable worker registered with the router.
type Agent struct {
	ID           string
	Name         string
	Capabilities []Capability
	Capacity     int
	internal     internalState
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// State returns the agent's wire-visible lifecycle state.
func (a *Agent) State() State {
	return a.internal.wireState()
}

// IsOperational reports whether the agent may be considered a routing
// candidate. Per the registry invariant, only ACTIVE agents are eligible;
// rate-limited, failed, and every other internal state are excluded.
func (a *Agent) IsOperational() bool {
	return a.internal == internalActive
}

// HasCapability reports whether the agent declares the given capability.
func (a *Agent) HasCapability(cap Capability) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Spec describes an agent at registration time.
type Spec struct {
	ID           string
	Name         string
	Capabilities []Capability
	Capacity     int
}

func (s Spec) validate() error {
	if s.ID == "" {
		return fmt.Errorf("agent id must not be empty")
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("agent capacity must be positive")
	}
	return nil
}
