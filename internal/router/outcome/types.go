// Package outcome implements OutcomeRecorder (§4.6): it persists the
// result of an executed task, updates the circuit breaker and load
// tracker, invalidates cached scores, and feeds the learning engine.
package outcome

import "time"

// Report is the caller-supplied outcome for a previously emitted routing
// decision.
type Report struct {
	RoutingID        string
	Success          bool
	ExecutionMs      float64
	CostCents        *float64
	QualityMetrics   map[string]float64
	UserSatisfaction *float64
	ErrorCount       int
	RetryAttempts    int
}

// TaskOutcome is the structured, durable record of an observed outcome
// (§3). SuccessScore is a derived real value, not just the reported
// boolean: when QualityMetrics are present, it is averaged with the
// boolean-derived score.
type TaskOutcome struct {
	RoutingID        string
	AgentID          string
	TaskType         string
	Complexity       string
	SuccessScore     float64
	CompletionSeconds float64
	QualityMetrics   map[string]float64
	UserSatisfaction *float64
	ErrorCount       int
	RetryAttempts    int
	CostActualCents  *float64
	ContextMetadata  map[string]interface{}
	CreatedAt        time.Time
}

// successScore implements the §3 derivation rule: average the boolean
// outcome with the mean of any supplied quality metrics.
func successScore(success bool, quality map[string]float64) float64 {
	boolScore := 0.0
	if success {
		boolScore = 1.0
	}
	if len(quality) == 0 {
		return boolScore
	}
	sum := 0.0
	for _, v := range quality {
		sum += v
	}
	mean := sum / float64(len(quality))
	return (boolScore + mean) / 2
}
