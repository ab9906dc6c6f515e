package learning

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/outcome"
	"github.com/developer-mesh/agent-router/pkg/observability"
)

// Config holds the LearningEngine's tuning knobs (§4.7, §6).
type Config struct {
	LearningRate        float64
	ConfidenceThreshold float64
	MinimumSampleSize   int
	PredictionThreshold float64
}

// DefaultConfig returns the §6 defaults.
func DefaultConfig() Config {
	return Config{LearningRate: 0.01, ConfidenceThreshold: 0.8, MinimumSampleSize: 20, PredictionThreshold: 0.6}
}

// Store persists the durable side of the LearningEngine: specialization
// upserts and optimization snapshots.
type Store interface {
	UpsertSpecialization(ctx context.Context, s Specialization) error
	SaveOptimizationSnapshot(ctx context.Context, o RoutingOptimization) error
	SavePrediction(ctx context.Context, p SuccessPrediction) error
	ActiveSpecializations(ctx context.Context, agentID string) ([]Specialization, error)
}

// Engine is the LearningEngine: weight matrix, specialization map, and
// ring buffer of recent outcomes, plus the optimizer and predictor.
type Engine struct {
	cfg   Config
	ring  *ring
	store Store

	mu sync.RWMutex
	w  map[string]map[string]float64 // agent_id -> task_key -> weight

	specMu sync.RWMutex
	specs  map[string]Specialization // "<agent_id>|<spec_type>"

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a LearningEngine.
func New(cfg Config, store Store, logger observability.Logger, metrics observability.MetricsClient) *Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &Engine{
		cfg:     cfg,
		ring:    newRing(),
		store:   store,
		w:       make(map[string]map[string]float64),
		specs:   make(map[string]Specialization),
		logger:  logger.WithPrefix("learning"),
		metrics: metrics,
	}
}

// Weight returns the current W[agent][task_key], defaulting to 0.5 for an
// unseen pairing (a neutral prior).
func (e *Engine) Weight(agentID, key string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if row, ok := e.w[agentID]; ok {
		if v, ok := row[key]; ok {
			return v
		}
	}
	return 0.5
}

func (e *Engine) setWeight(agentID, key string, value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, ok := e.w[agentID]
	if !ok {
		row = make(map[string]float64)
		e.w[agentID] = row
	}
	row[key] = clamp01(value)
}

// Ingest implements the incremental update of §4.7: it is the
// synchronous, in-memory half of OutcomeRecorder's forward to
// LearningEngine.ingest(outcome).
func (e *Engine) Ingest(o outcome.TaskOutcome) {
	e.ring.add(o)

	key := taskKey(o.TaskType, o.Complexity)
	signal := o.SuccessScore * (2.0 - o.CompletionSeconds/30.0)
	current := e.Weight(o.AgentID, key)
	e.setWeight(o.AgentID, key, current+e.cfg.LearningRate*(signal-current))

	count := len(forAgent(e.ring.snapshot(), o.AgentID))
	if count >= e.cfg.MinimumSampleSize {
		e.detectSpecializationsForAgent(context.Background(), o.AgentID)
	}
}

// RecentOutcomeCount reports how many outcomes in the ring buffer fall
// within the last d, for analytics and health reporting.
func (e *Engine) RecentOutcomeCount(d time.Duration) int {
	return len(withinDays(e.ring.snapshot(), d))
}

// DetectSpecializations runs the full specialization scan across every
// agent present in the ring buffer, for the SpecializationScan control
// loop.
func (e *Engine) DetectSpecializations(ctx context.Context) {
	all := e.ring.snapshot()
	agents := map[string]bool{}
	for _, o := range all {
		agents[o.AgentID] = true
	}
	for agentID := range agents {
		e.detectSpecializationsForAgent(ctx, agentID)
	}
}

func (e *Engine) detectSpecializationsForAgent(ctx context.Context, agentID string) {
	mine := forAgent(e.ring.snapshot(), agentID)
	if len(mine) < e.cfg.MinimumSampleSize {
		return
	}

	overallMean := mean(scores(mine))

	groups := map[string][]outcome.TaskOutcome{}
	for _, o := range mine {
		key := taskKey(o.TaskType, o.Complexity)
		groups[key] = append(groups[key], o)
	}

	for key, group := range groups {
		if len(group) < 5 {
			continue
		}
		groupMean := mean(scores(group))
		advantage := groupMean - overallMean
		if groupMean >= 0.8 && advantage >= 0.15 {
			spec := Specialization{
				AgentID:               agentID,
				SpecializationType:    key,
				TaskTypes:             []string{group[0].TaskType},
				ComplexityPreferences: []string{group[0].Complexity},
				Confidence:            math.Min(1, 2*advantage),
				PerformanceAdvantage:  advantage,
				SampleSize:            len(group),
				DiscoveredAt:          time.Now(),
				LastValidated:         time.Now(),
				IsActive:              true,
			}
			e.upsertSpecialization(spec)
			if e.store != nil {
				if err := e.store.UpsertSpecialization(ctx, spec); err != nil {
					e.logger.Warnf("failed to persist specialization for %s: %v", agentID, err)
				}
			}
		}
	}
}

func (e *Engine) upsertSpecialization(s Specialization) {
	e.specMu.Lock()
	defer e.specMu.Unlock()
	e.specs[s.AgentID+"|"+s.SpecializationType] = s
}

// ActiveSpecialization returns the active specialization for an agent and
// task key, if any.
func (e *Engine) ActiveSpecialization(agentID, key string) (Specialization, bool) {
	e.specMu.RLock()
	defer e.specMu.RUnlock()
	s, ok := e.specs[agentID+"|"+key]
	if !ok || !s.IsActive {
		return Specialization{}, false
	}
	return s, true
}

// SpecializationsForTaskType returns every active specialization whose
// task type matches taskType, across all agents.
func (e *Engine) SpecializationsForTaskType(taskType string) []Specialization {
	e.specMu.RLock()
	defer e.specMu.RUnlock()
	var out []Specialization
	for _, s := range e.specs {
		if !s.IsActive {
			continue
		}
		for _, tt := range s.TaskTypes {
			if tt == taskType {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Optimize runs the ensemble weight optimizer (§4.7): three independent
// estimators — Bayesian, performance-weighted, and risk-adjusted — are
// computed per (agent, task_key) pair with enough history and averaged
// into a new weight matrix, which becomes the active snapshot.
func (e *Engine) Optimize(ctx context.Context) (RoutingOptimization, error) {
	all := e.ring.snapshot()

	taskBaselines := map[string][]float64{}
	for _, o := range all {
		key := taskKey(o.TaskType, o.Complexity)
		taskBaselines[key] = append(taskBaselines[key], o.SuccessScore)
	}

	type cell struct {
		agentID, key string
		outcomes     []outcome.TaskOutcome
	}
	groups := map[string]*cell{}
	for _, o := range all {
		key := taskKey(o.TaskType, o.Complexity)
		ck := o.AgentID + "|" + key
		c, ok := groups[ck]
		if !ok {
			c = &cell{agentID: o.AgentID, key: key}
			groups[ck] = c
		}
		c.outcomes = append(c.outcomes, o)
	}

	newWeights := map[string]map[string]float64{}
	var deltas []float64
	var totalSamples int

	for _, c := range groups {
		if len(c.outcomes) < 3 {
			continue
		}
		successScores := scores(c.outcomes)
		s := mean(successScores)
		sd := stddev(successScores)
		n := len(c.outcomes)

		successes := 0
		for _, v := range successScores {
			if v >= 0.5 {
				successes++
			}
		}
		failures := n - successes
		alpha, beta := float64(1+successes), float64(1+failures)
		bayesian := clamp01(alpha / (alpha + beta))

		baseline := mean(taskBaselines[c.key])
		advantage := s - baseline
		avgTime := mean(completionSeconds(c.outcomes))
		timeFactor := math.Max(0.1, 1-(avgTime-5)/30)
		satisfactionFactor := mean(satisfactions(c.outcomes))
		if satisfactionFactor == 0 {
			satisfactionFactor = 1.0
		}
		perfWeighted := clamp01((0.5 + advantage*2) * timeFactor * satisfactionFactor)

		riskAdjusted := clamp01((s - sd/2) * math.Min(1, float64(n)/50))

		ensemble := (bayesian + perfWeighted + riskAdjusted) / 3

		row, ok := newWeights[c.agentID]
		if !ok {
			row = make(map[string]float64)
			newWeights[c.agentID] = row
		}
		row[c.key] = ensemble

		deltas = append(deltas, ensemble-e.Weight(c.agentID, c.key))
		totalSamples += n
	}

	improvement := mean(deltas)
	lower := clamp01(improvement - math.Abs(improvement)*0.3)
	upper := clamp01(improvement + math.Abs(improvement)*0.3)
	if improvement < 0 {
		lower, upper = upper, lower
	}

	opt := RoutingOptimization{
		Version:                time.Now().Format("20060102T150405"),
		Weights:                newWeights,
		PerformanceImprovement: improvement,
		ConfidenceLower:        lower,
		ConfidenceUpper:        upper,
		Method:                 "ensemble_bayesian_performance_risk",
		SampleSize:             totalSamples,
		AppliedAt:              time.Now(),
		IsActive:               true,
	}

	e.mu.Lock()
	for agentID, row := range newWeights {
		dst, ok := e.w[agentID]
		if !ok {
			dst = make(map[string]float64)
			e.w[agentID] = dst
		}
		for key, v := range row {
			dst[key] = v
		}
	}
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveOptimizationSnapshot(ctx, opt); err != nil {
			e.logger.Warnf("failed to persist optimization snapshot %s: %v", opt.Version, err)
		}
	}

	return opt, nil
}

func completionSeconds(outcomes []outcome.TaskOutcome) []float64 {
	out := make([]float64, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.CompletionSeconds
	}
	return out
}

func satisfactions(outcomes []outcome.TaskOutcome) []float64 {
	var out []float64
	for _, o := range outcomes {
		if o.UserSatisfaction != nil {
			out = append(out, *o.UserSatisfaction/5.0)
		}
	}
	return out
}

// Predict forecasts the success rate for an (agent, task) pairing (§4.7).
// With fewer than five observed outcomes it blends a base rate with any
// matching specialization advantage and the current routing weight; with
// enough history it derives a rate from the observed mean, a recent-vs-older
// trend, and task context (priority, deadline), narrowing the interval from
// the observed variance. priority and deadline mirror the TaskContext the
// caller is routing; deadline may be nil.
func (e *Engine) Predict(ctx context.Context, taskType, complexity, agentID string, priority int, deadline *time.Time) (SuccessPrediction, error) {
	key := taskKey(taskType, complexity)
	mine := forAgent(e.ring.snapshot(), agentID)

	var relevant []outcome.TaskOutcome
	for _, o := range mine {
		if taskKey(o.TaskType, o.Complexity) == key {
			relevant = append(relevant, o)
		}
	}

	pred := SuccessPrediction{
		AgentID:    agentID,
		TaskType:   taskType,
		Complexity: complexity,
		CreatedAt:  time.Now(),
	}

	if len(relevant) < 5 {
		base := 0.7
		if spec, ok := e.ActiveSpecialization(agentID, key); ok {
			base = clamp01(base + spec.PerformanceAdvantage*0.3)
		}
		rate := clamp01((base + e.Weight(agentID, key)) / 2)

		pred.PredictedRate = rate
		pred.ConfidenceLower = clamp01(rate - 0.3)
		pred.ConfidenceUpper = clamp01(rate + 0.3)
		pred.RiskFactors = []string{"limited_historical_data"}
		if complexity == "CRITICAL" {
			pred.RiskFactors = append(pred.RiskFactors, "high_complexity_task")
		}
		pred.PredictionModel = "base_rate_fallback"
	} else {
		successScores := scores(relevant)
		s := mean(successScores)
		sd := stddev(successScores)
		n := float64(len(relevant))
		margin := math.Min(0.3, 1.96*sd/math.Sqrt(n))

		trend := trendFactor(relevant)
		adjustment := contextAdjustment(priority, deadline)

		predicted := clamp01(s + trend + adjustment)

		pred.PredictedRate = predicted
		pred.ConfidenceLower = clamp01(predicted - margin)
		pred.ConfidenceUpper = clamp01(predicted + margin)
		pred.PredictionModel = "empirical_mean_variance"

		if sd > 0.3 {
			pred.RiskFactors = append(pred.RiskFactors, "high_performance_variability")
		}
		if recentErrorsDetected(relevant) {
			pred.RiskFactors = append(pred.RiskFactors, "recent_errors_detected")
		}
		if retryPatternObserved(relevant) {
			pred.RiskFactors = append(pred.RiskFactors, "retry_pattern_observed")
		}
		if trend < -0.05 {
			pred.RiskFactors = append(pred.RiskFactors, "declining_performance_trend")
		}
	}

	if e.store != nil {
		if err := e.store.SavePrediction(ctx, pred); err != nil {
			e.logger.Warnf("failed to persist prediction for %s/%s: %v", agentID, key, err)
		}
	}

	return pred, nil
}

// trendFactor implements §4.7's trend_factor: 0.2·(mean_recent_7d −
// mean_older), comparing outcomes from the last 7 days against everything
// older in the relevant set.
func trendFactor(outcomes []outcome.TaskOutcome) float64 {
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	var recent, older []float64
	for _, o := range outcomes {
		if o.CreatedAt.After(cutoff) {
			recent = append(recent, o.SuccessScore)
		} else {
			older = append(older, o.SuccessScore)
		}
	}
	if len(recent) == 0 || len(older) == 0 {
		return 0
	}
	return 0.2 * (mean(recent) - mean(older))
}

// contextAdjustment implements §4.7's context_adjustment.
func contextAdjustment(priority int, deadline *time.Time) float64 {
	adjustment := 0.0
	if priority >= 8 {
		adjustment -= 0.05
	} else if priority <= 3 {
		adjustment += 0.05
	}
	if deadline != nil && !deadline.After(time.Now().Add(2*time.Hour)) && deadline.After(time.Now()) {
		adjustment -= 0.1
	}
	return adjustment
}

// recentErrorsDetected reports whether any relevant outcome recorded an
// execution error.
func recentErrorsDetected(outcomes []outcome.TaskOutcome) bool {
	for _, o := range outcomes {
		if o.ErrorCount > 0 {
			return true
		}
	}
	return false
}

// retryPatternObserved reports whether retries were needed on more than
// one relevant outcome, suggesting a recurring pattern rather than a
// one-off.
func retryPatternObserved(outcomes []outcome.TaskOutcome) bool {
	count := 0
	for _, o := range outcomes {
		if o.RetryAttempts > 0 {
			count++
		}
	}
	return count > 1
}

// FailurePrediction computes a recency-weighted predictive failure score
// for agentID from its last 20 outcomes within a 2-hour window: each
// failure is weighted by 1/(position from most recent + 1) so recent
// failures dominate, the weighted rate is amplified by 1.5, and the result
// is capped at 1.0. Grounded on the original's
// _calculate_failure_prediction.
func (e *Engine) FailurePrediction(agentID string) float64 {
	recent := withinDays(forAgent(e.ring.snapshot(), agentID), 2*time.Hour)
	if len(recent) == 0 {
		return 0
	}
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	var weightedFailures, totalWeight float64
	for i := len(recent) - 1; i >= 0; i-- {
		weight := 1.0 / float64(len(recent)-i)
		if recent[i].SuccessScore < 0.5 {
			weightedFailures += weight
		}
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp01((weightedFailures / totalWeight) * 1.5)
}

// AnalyticsOverall is the top-level summary returned by Analytics, mirroring
// the original's overall_metrics.
type AnalyticsOverall struct {
	TotalRoutings int
	SuccessRate   float64
	UniqueAgents  int
}

// AgentAnalytics is one agent's row in Analytics' per-agent breakdown.
type AgentAnalytics struct {
	RoutingCount int
	SuccessRate  float64
	AvgCostCents float64
}

// TaskTypeAnalytics is one (task_type, complexity) row in Analytics' breakdown.
type TaskTypeAnalytics struct {
	Count       int
	SuccessRate float64
}

// Analytics summarizes every outcome ingested within the last windowHours,
// grouped overall, per agent, and per task key, mirroring the original's
// get_routing_analytics.
func (e *Engine) Analytics(windowHours int) (AnalyticsOverall, map[string]AgentAnalytics, map[string]TaskTypeAnalytics) {
	outcomes := withinDays(e.ring.snapshot(), time.Duration(windowHours)*time.Hour)

	agents := map[string]bool{}
	perAgent := map[string][]outcome.TaskOutcome{}
	perTask := map[string][]outcome.TaskOutcome{}
	for _, o := range outcomes {
		agents[o.AgentID] = true
		perAgent[o.AgentID] = append(perAgent[o.AgentID], o)
		key := taskKey(o.TaskType, o.Complexity)
		perTask[key] = append(perTask[key], o)
	}

	overall := AnalyticsOverall{
		TotalRoutings: len(outcomes),
		SuccessRate:   mean(scores(outcomes)),
		UniqueAgents:  len(agents),
	}

	agentOut := make(map[string]AgentAnalytics, len(perAgent))
	for id, os := range perAgent {
		agentOut[id] = AgentAnalytics{
			RoutingCount: len(os),
			SuccessRate:  mean(scores(os)),
			AvgCostCents: meanCost(os),
		}
	}

	taskOut := make(map[string]TaskTypeAnalytics, len(perTask))
	for key, os := range perTask {
		taskOut[key] = TaskTypeAnalytics{Count: len(os), SuccessRate: mean(scores(os))}
	}

	return overall, agentOut, taskOut
}

func meanCost(outcomes []outcome.TaskOutcome) float64 {
	var sum float64
	var n int
	for _, o := range outcomes {
		if o.CostActualCents != nil {
			sum += *o.CostActualCents
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func scores(outcomes []outcome.TaskOutcome) []float64 {
	out := make([]float64, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.SuccessScore
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
