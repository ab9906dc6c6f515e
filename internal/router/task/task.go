// Package task defines the TaskContext the router accepts as routing
// input, shared by every downstream component (§3 of the routing
// specification).
package task

import (
	"time"

	"github.com/developer-mesh/agent-router/internal/router/registry"
)

// Complexity is a coarse task classification used as a routing feature.
type Complexity string

// Complexity levels.
const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
	ComplexityCritical Complexity = "CRITICAL"
)

// Context is the input to a single routing decision.
type Context struct {
	TaskType             string
	Complexity           Complexity
	Priority             int
	Deadline             *time.Time
	ProjectID            string
	UserID               string
	RequiredCapabilities []registry.Capability
	PreferredAgents      []string
	FallbackAgents       []string
	SensitiveData        bool
	Metadata             map[string]interface{}
}

// Key returns the "<task_type>_<complexity>" key used to index the weight
// matrix and historical aggregates.
func (c Context) Key() string {
	return c.TaskType + "_" + string(c.Complexity)
}

// RegistryView projects the fields the Registry's candidate-set rule
// needs out of the full Context.
func (c Context) RegistryView() registry.TaskContext {
	return registry.TaskContext{
		PreferredAgents:      c.PreferredAgents,
		RequiredCapabilities: c.RequiredCapabilities,
	}
}

// DeadlineWithin reports whether the task's deadline, if set, falls within
// d of now.
func (c Context) DeadlineWithin(d time.Duration) bool {
	if c.Deadline == nil {
		return false
	}
	return !c.Deadline.After(time.Now().Add(d)) && c.Deadline.After(time.Now())
}
