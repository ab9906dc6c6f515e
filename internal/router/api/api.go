// Package api exposes the routing API (§6) over HTTP/JSON using gin:
// route, record_outcome, health_status, analytics, and run_optimization.
package api

import (
	"net/http"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/intelligent"
	"github.com/developer-mesh/agent-router/internal/router/learning"
	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/developer-mesh/agent-router/internal/router/outcome"
	"github.com/developer-mesh/agent-router/internal/router/registry"
	"github.com/developer-mesh/agent-router/internal/router/routererrors"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/selector"
	"github.com/developer-mesh/agent-router/internal/router/task"
	"github.com/developer-mesh/agent-router/pkg/observability"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// RouteRequest is the JSON body for POST /route.
type RouteRequest struct {
	TaskType             string                 `json:"task_type" validate:"required"`
	Complexity           string                 `json:"complexity" validate:"required,oneof=SIMPLE MODERATE COMPLEX CRITICAL"`
	Priority             int                    `json:"priority" validate:"min=1,max=10"`
	DeadlineSeconds      *int                   `json:"deadline_seconds,omitempty"`
	ProjectID            string                 `json:"project_id,omitempty"`
	UserID               string                 `json:"user_id,omitempty"`
	RequiredCapabilities []string               `json:"required_capabilities,omitempty"`
	PreferredAgents      []string               `json:"preferred_agents,omitempty"`
	FallbackAgents       []string               `json:"fallback_agents,omitempty"`
	SensitiveData        bool                   `json:"sensitive_data,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// RecordOutcomeRequest is the JSON body for POST /outcomes.
type RecordOutcomeRequest struct {
	RoutingID        string             `json:"routing_id" validate:"required"`
	Success          bool               `json:"success"`
	ExecutionMs      float64            `json:"execution_ms" validate:"min=0"`
	CostCents        *float64           `json:"cost_cents,omitempty"`
	QualityMetrics   map[string]float64 `json:"quality_metrics,omitempty"`
	UserSatisfaction *float64           `json:"user_satisfaction,omitempty"`
	ErrorCount       int                `json:"error_count,omitempty"`
	RetryAttempts    int                `json:"retry_attempts,omitempty"`
}

// AgentHealthStatus is one entry of GET /health.
type AgentHealthStatus struct {
	AgentID                string    `json:"agent_id"`
	Name                   string    `json:"name"`
	Status                 string    `json:"status"`
	LoadLevel              string    `json:"load_level"`
	SuccessRate            float64   `json:"success_rate"`
	ErrorRate              float64   `json:"error_rate"`
	P95ResponseMs          float64   `json:"p95_response_ms"`
	CostPerRequestCents    float64   `json:"cost_per_request_cents"`
	LastHealthCheck        time.Time `json:"last_health_check"`
	PredictiveFailureScore float64   `json:"predictive_failure_score"`
	CapacityUtilization    float64   `json:"capacity_utilization"`
}

// CacheStatter reports PerformanceScore cache effectiveness for the
// analytics endpoint. Satisfied by *rediscache.ScoreCache; kept as a
// narrow interface so api does not depend on the concrete cache package.
type CacheStatter interface {
	CacheStats() (localHits, redisHits, misses int64, localItems int)
}

// Server wires every collaborator the routing API needs.
type Server struct {
	registry *registry.Registry
	breakers *breaker.Manager
	loads    *load.Tracker
	scorer   *scorer.Scorer
	router   *intelligent.Router
	recorder *outcome.Recorder
	learning *learning.Engine
	cache    CacheStatter
	logger   observability.Logger
	validate *validator.Validate
}

// NewServer creates an API server over the already-wired routing components.
// cache may be nil; analytics simply omits cache_stats in that case. logger
// may be nil, in which case log lines are discarded.
func NewServer(reg *registry.Registry, breakers *breaker.Manager, loads *load.Tracker, sc *scorer.Scorer, router *intelligent.Router, recorder *outcome.Recorder, eng *learning.Engine, cache CacheStatter, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Server{
		registry: reg,
		breakers: breakers,
		loads:    loads,
		scorer:   sc,
		router:   router,
		recorder: recorder,
		learning: eng,
		cache:    cache,
		logger:   logger.WithPrefix("api"),
		validate: validator.New(),
	}
}

// defaultRPS and defaultBurst bound the routing API's request rate; Route
// is the hot path and everything downstream of it (breaker state, load
// counters) is sized for a bursty but bounded request rate, not an
// unthrottled firehose.
const (
	defaultRPS   = 200
	defaultBurst = 400
)

// RegisterRoutes mounts every routing endpoint under the given group.
func (s *Server) RegisterRoutes(group *gin.RouterGroup) {
	group.Use(requestContextMiddleware())
	group.Use(rateLimitMiddleware(defaultRPS, defaultBurst))
	group.POST("/route", s.route)
	group.POST("/outcomes", s.recordOutcome)
	group.GET("/health", s.healthStatus)
	group.GET("/analytics", s.analytics)
	group.POST("/optimize", s.runOptimization)
}

func (s *Server) route(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := toTaskContext(req)

	candidateAgents, err := s.registry.Candidates(c.Request.Context(), t.RegistryView())
	if err != nil {
		writeRouterError(c, err)
		return
	}

	ids := make([]string, len(candidateAgents))
	namesByID := make(map[string]string, len(candidateAgents))
	for i, a := range candidateAgents {
		ids[i] = a.ID
		namesByID[a.ID] = a.Name
	}
	eligible := s.breakers.Filter(ids)
	if len(eligible) == 0 {
		writeRouterError(c, routererrors.New(routererrors.KindAllBreakersOpen, "api.route", nil))
		return
	}

	candidates := make([]selector.Candidate, 0, len(eligible))
	for _, id := range eligible {
		sc, err := s.scorer.Score(c.Request.Context(), id, t)
		if err != nil {
			continue
		}
		candidates = append(candidates, selector.Candidate{AgentID: id, AgentName: namesByID[id], Score: sc, LoadCount: s.loads.Count(id)})
	}

	result, err := s.router.Route(c.Request.Context(), t, candidates)
	if err != nil {
		writeRouterError(c, err)
		return
	}
	result.Selection.LoadLevelAtSelection = string(s.loads.LoadLevel(result.Selection.AgentID))
	s.loads.Increment(result.Selection.AgentID)

	reqLogger := observability.LoggerFromContext(c.Request.Context(), s.logger)
	reqLogger.Infof("routed %s/%s to agent %s (routing_id=%s)", t.TaskType, t.Complexity, result.Selection.AgentID, result.Selection.RoutingID)

	c.JSON(http.StatusOK, gin.H{
		"routing_id":             result.Selection.RoutingID,
		"selection":              result.Selection,
		"prediction":             result.Prediction,
		"explanation":            result.Explanation,
		"alternatives":            result.Alternatives,
		"optimization_confidence": result.OptimizationConfidence,
	})
}

func (s *Server) recordOutcome(c *gin.Context) {
	var req RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report := outcome.Report{
		RoutingID:        req.RoutingID,
		Success:          req.Success,
		ExecutionMs:      req.ExecutionMs,
		CostCents:        req.CostCents,
		QualityMetrics:   req.QualityMetrics,
		UserSatisfaction: req.UserSatisfaction,
		ErrorCount:       req.ErrorCount,
		RetryAttempts:    req.RetryAttempts,
	}
	if err := s.recorder.Record(c.Request.Context(), report); err != nil {
		reqLogger := observability.LoggerFromContext(c.Request.Context(), s.logger)
		reqLogger.Warnf("failed to record outcome for routing_id %s: %v", report.RoutingID, err)
		writeRouterError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) healthStatus(c *gin.Context) {
	ids := s.registry.ActiveAgentIDs()
	statuses := make([]AgentHealthStatus, 0, len(ids))
	for _, id := range ids {
		snap := s.breakers.Get(id).Snapshot()

		name := id
		if agent := s.registry.Get(id); agent != nil {
			name = agent.Name
		}

		var successRate, errorRate, p95, costCents float64
		if agg, err := s.scorer.Aggregate(c.Request.Context(), id); err == nil && agg.Found {
			successRate = agg.SuccessRate
			errorRate = 1 - agg.SuccessRate
			p95 = agg.P95ExecutionMs
			costCents = agg.AvgCostCents
		}

		statuses = append(statuses, AgentHealthStatus{
			AgentID:                id,
			Name:                   name,
			Status:                 string(snap.State),
			LoadLevel:              string(s.loads.LoadLevel(id)),
			SuccessRate:            successRate,
			ErrorRate:              errorRate,
			P95ResponseMs:          p95,
			CostPerRequestCents:    costCents,
			LastHealthCheck:        time.Now(),
			PredictiveFailureScore: s.learning.FailurePrediction(id),
			CapacityUtilization:    s.loads.Ratio(id),
		})
	}
	c.JSON(http.StatusOK, statuses)
}

func (s *Server) analytics(c *gin.Context) {
	windowHours := 24
	breakerStates := s.breakers.AllStates()

	overall, perAgent, perTaskType := s.learning.Analytics(windowHours)

	loads := make(gin.H, len(perAgent))
	for _, id := range s.registry.ActiveAgentIDs() {
		loads[id] = gin.H{
			"count": s.loads.Count(id),
			"ratio": s.loads.Ratio(id),
			"level": string(s.loads.LoadLevel(id)),
		}
	}

	resp := gin.H{
		"window_hours": windowHours,
		"overall": gin.H{
			"total_routings": overall.TotalRoutings,
			"success_rate":   overall.SuccessRate,
			"unique_agents":  overall.UniqueAgents,
		},
		"per_agent":     perAgent,
		"per_task_type": perTaskType,
		"breakers":      breakerStates,
		"loads":         loads,
	}
	if s.cache != nil {
		localHits, redisHits, misses, localItems := s.cache.CacheStats()
		resp["cache_stats"] = gin.H{
			"local_hits":  localHits,
			"redis_hits":  redisHits,
			"misses":      misses,
			"local_items": localItems,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) runOptimization(c *gin.Context) {
	opt, err := s.learning.Optimize(c.Request.Context())
	if err != nil {
		writeRouterError(c, err)
		return
	}
	c.JSON(http.StatusOK, opt)
}

func toTaskContext(req RouteRequest) task.Context {
	t := task.Context{
		TaskType:        req.TaskType,
		Complexity:      task.Complexity(req.Complexity),
		Priority:        req.Priority,
		ProjectID:       req.ProjectID,
		UserID:          req.UserID,
		PreferredAgents: req.PreferredAgents,
		FallbackAgents:  req.FallbackAgents,
		SensitiveData:   req.SensitiveData,
		Metadata:        req.Metadata,
	}
	for _, c := range req.RequiredCapabilities {
		t.RequiredCapabilities = append(t.RequiredCapabilities, registry.Capability(c))
	}
	if req.DeadlineSeconds != nil {
		deadline := time.Now().Add(time.Duration(*req.DeadlineSeconds) * time.Second)
		t.Deadline = &deadline
	}
	return t
}

func writeRouterError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case routererrors.IsNoCapableAgent(err):
		status = http.StatusServiceUnavailable
	case routererrors.IsAllBreakersOpen(err):
		status = http.StatusServiceUnavailable
	case routererrors.IsOutcomeNotFound(err):
		status = http.StatusNotFound
	case routererrors.IsRoutingTimeout(err):
		status = http.StatusGatewayTimeout
	case routererrors.IsPersistenceUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
