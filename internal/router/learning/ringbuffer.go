package learning

import (
	"sync"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/outcome"
)

const ringCapacity = 10_000

// ring is a fixed-capacity circular buffer of the most recent outcomes,
// the in-memory substrate for incremental learning (§3, §4.7).
type ring struct {
	mu    sync.Mutex
	items []outcome.TaskOutcome
	next  int
	full  bool
}

func newRing() *ring {
	return &ring{items: make([]outcome.TaskOutcome, ringCapacity)}
}

func (r *ring) add(o outcome.TaskOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = o
	r.next = (r.next + 1) % ringCapacity
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns a copy of every outcome currently held.
func (r *ring) snapshot() []outcome.TaskOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = ringCapacity
	}
	out := make([]outcome.TaskOutcome, n)
	copy(out, r.items[:n])
	return out
}

// withinDays filters outcomes to those created within the last d.
func withinDays(outcomes []outcome.TaskOutcome, d time.Duration) []outcome.TaskOutcome {
	cutoff := time.Now().Add(-d)
	var filtered []outcome.TaskOutcome
	for _, o := range outcomes {
		if o.CreatedAt.After(cutoff) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// forAgent filters outcomes to a single agent id.
func forAgent(outcomes []outcome.TaskOutcome, agentID string) []outcome.TaskOutcome {
	var filtered []outcome.TaskOutcome
	for _, o := range outcomes {
		if o.AgentID == agentID {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// taskKey mirrors task.Context.Key() without importing the task package,
// since TaskOutcome already stores the flattened fields.
func taskKey(taskType, complexity string) string {
	return taskType + "_" + complexity
}
