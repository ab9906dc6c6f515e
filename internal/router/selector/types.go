// Package selector ranks scored candidates, picks one, and produces the
// AgentSelection described in §3 and §4.5 of the routing specification.
package selector

import (
	"time"

	"github.com/developer-mesh/agent-router/internal/router/scorer"
)

// Candidate pairs an agent id with its computed score.
type Candidate struct {
	AgentID   string
	AgentName string
	Score     scorer.Score
	LoadCount int
}

// AgentSelection is the immutable output of a successful routing decision.
type AgentSelection struct {
	RoutingID                  string
	AgentID                    string
	AgentName                  string
	Confidence                 float64
	Reason                     string
	Fallbacks                  []string
	EstimatedCompletionSeconds float64
	EstimatedCostCents         float64
	LoadLevelAtSelection       string
	SelectedAt                 time.Time
	ScoreBreakdown             scorer.Score
}

// complexityDefaultSeconds and complexityDefaultCostCents back the §4.5
// fallback estimates when no historical mean is available.
var complexityDefaultSeconds = map[string]float64{
	"SIMPLE": 2, "MODERATE": 10, "COMPLEX": 30, "CRITICAL": 60,
}

var complexityDefaultCostCents = map[string]float64{
	"SIMPLE": 1, "MODERATE": 5, "COMPLEX": 20, "CRITICAL": 50,
}
