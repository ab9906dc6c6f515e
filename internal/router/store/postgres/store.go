// Package postgres adapts sqlx against the §6 relational schema into
// concrete implementations of every durable-store interface the router's
// components depend on: Scorer's HistoryStore, Selector's EstimateStore
// and RecordWriter, OutcomeRecorder's RoutingRecordLookup and
// DurableWriter, and LearningEngine's Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/learning"
	"github.com/developer-mesh/agent-router/internal/router/outcome"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/selector"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the single sqlx-backed adapter satisfying every router
// persistence interface. Components only see the narrow interface they
// declared; Store is never passed around as a god object.
type Store struct {
	db *sqlx.DB
}

// Open connects to postgres (driver "postgres") using dsn and applies the
// connection pool limits from pkg/config.DatabaseConfig.
func Open(dsn string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// aggregate7DayRow mirrors the row shape of the 7-day rolling aggregate
// query over task_outcomes.
type aggregate7DayRow struct {
	SuccessRate    float64 `db:"success_rate"`
	AvgExecutionMs float64 `db:"avg_execution_ms"`
	AvgCostCents   float64 `db:"avg_cost_cents"`
	P95ExecutionMs float64 `db:"p95_execution_ms"`
}

// Aggregate7Day implements scorer.HistoryStore.
func (s *Store) Aggregate7Day(ctx context.Context, agentID string) (scorer.Aggregate7Day, error) {
	const query = `
		SELECT
			COALESCE(AVG(success_score), 0) AS success_rate,
			COALESCE(AVG(completion_seconds) * 1000, 0) AS avg_execution_ms,
			COALESCE(AVG(cost_actual_cents), 0) AS avg_cost_cents,
			COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY completion_seconds) * 1000, 0) AS p95_execution_ms
		FROM task_outcomes
		WHERE agent_id = $1 AND created_at > now() - interval '7 days'`

	var row aggregate7DayRow
	var count int
	countQuery := `SELECT count(*) FROM task_outcomes WHERE agent_id = $1 AND created_at > now() - interval '7 days'`
	if err := s.db.GetContext(ctx, &count, countQuery, agentID); err != nil {
		return scorer.Aggregate7Day{}, fmt.Errorf("failed to count 7-day outcomes: %w", err)
	}
	if count == 0 {
		return scorer.Aggregate7Day{Found: false}, nil
	}
	if err := s.db.GetContext(ctx, &row, query, agentID); err != nil {
		return scorer.Aggregate7Day{}, fmt.Errorf("failed to aggregate 7-day outcomes: %w", err)
	}

	return scorer.Aggregate7Day{
		Found:          true,
		SuccessRate:    row.SuccessRate,
		AvgExecutionMs: row.AvgExecutionMs,
		AvgCostCents:   row.AvgCostCents,
		P95ExecutionMs: row.P95ExecutionMs,
	}, nil
}

// TaskSuccessRate30Day implements scorer.HistoryStore.
func (s *Store) TaskSuccessRate30Day(ctx context.Context, agentID string, taskKey string) (float64, bool, error) {
	const query = `
		SELECT AVG(success_score)
		FROM task_outcomes
		WHERE agent_id = $1 AND task_type || '_' || complexity = $2 AND created_at > now() - interval '30 days'`

	var rate sql.NullFloat64
	if err := s.db.GetContext(ctx, &rate, query, agentID, taskKey); err != nil {
		return 0, false, fmt.Errorf("failed to compute 30-day task success rate: %w", err)
	}
	if !rate.Valid {
		return 0, false, nil
	}
	return rate.Float64, true, nil
}

// MeanCompletionSeconds14Day implements selector.EstimateStore.
func (s *Store) MeanCompletionSeconds14Day(ctx context.Context, agentID, taskKey string) (float64, bool, error) {
	const query = `
		SELECT AVG(completion_seconds)
		FROM task_outcomes
		WHERE agent_id = $1 AND task_type || '_' || complexity = $2 AND created_at > now() - interval '14 days'`

	var mean sql.NullFloat64
	if err := s.db.GetContext(ctx, &mean, query, agentID, taskKey); err != nil {
		return 0, false, fmt.Errorf("failed to compute 14-day mean completion time: %w", err)
	}
	return mean.Float64, mean.Valid, nil
}

// MeanCostCents14Day implements selector.EstimateStore.
func (s *Store) MeanCostCents14Day(ctx context.Context, agentID, taskKey string) (float64, bool, error) {
	const query = `
		SELECT AVG(cost_actual_cents)
		FROM task_outcomes
		WHERE agent_id = $1 AND task_type || '_' || complexity = $2 AND created_at > now() - interval '14 days'`

	var mean sql.NullFloat64
	if err := s.db.GetContext(ctx, &mean, query, agentID, taskKey); err != nil {
		return 0, false, fmt.Errorf("failed to compute 14-day mean cost: %w", err)
	}
	return mean.Float64, mean.Valid, nil
}

// CreateRoutingRecord implements selector.RecordWriter.
func (s *Store) CreateRoutingRecord(ctx context.Context, rec selector.RoutingRecord) error {
	const query = `
		INSERT INTO routing_records (routing_id, agent_id, task_type, complexity, selection_score, routing_time_ms, created_at, has_outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)`

	_, err := s.db.ExecContext(ctx, query, rec.RoutingID, rec.AgentID, rec.TaskType, rec.Complexity, rec.SelectionScore, rec.RoutingTimeMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create routing record %s: %w", rec.RoutingID, err)
	}
	return nil
}

// Lookup implements outcome.RoutingRecordLookup.
func (s *Store) Lookup(ctx context.Context, routingID string) (string, string, string, bool, error) {
	const query = `SELECT agent_id, task_type, complexity, has_outcome FROM routing_records WHERE routing_id = $1`

	var row struct {
		AgentID    string `db:"agent_id"`
		TaskType   string `db:"task_type"`
		Complexity string `db:"complexity"`
		HasOutcome bool   `db:"has_outcome"`
	}
	if err := s.db.GetContext(ctx, &row, query, routingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", "", false, fmt.Errorf("routing record not found: %s", routingID)
		}
		return "", "", "", false, fmt.Errorf("failed to look up routing record %s: %w", routingID, err)
	}
	return row.AgentID, row.TaskType, row.Complexity, row.HasOutcome, nil
}

// MarkRecorded implements outcome.RoutingRecordLookup. It is a
// conditional update, so a second caller racing on the same routing_id
// affects zero rows and reports the "already recorded" error.
func (s *Store) MarkRecorded(ctx context.Context, routingID string) error {
	const query = `UPDATE routing_records SET has_outcome = true WHERE routing_id = $1 AND has_outcome = false`

	res, err := s.db.ExecContext(ctx, query, routingID)
	if err != nil {
		return fmt.Errorf("failed to mark routing record %s recorded: %w", routingID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s: %w", routingID, err)
	}
	if affected == 0 {
		return fmt.Errorf("routing record %s already recorded", routingID)
	}
	return nil
}

// SaveOutcome implements outcome.DurableWriter.
func (s *Store) SaveOutcome(ctx context.Context, o outcome.TaskOutcome) error {
	const query = `
		INSERT INTO task_outcomes (routing_id, agent_id, task_type, complexity, success_score, completion_seconds, error_count, retry_attempts, cost_actual_cents, user_satisfaction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query, o.RoutingID, o.AgentID, o.TaskType, o.Complexity, o.SuccessScore, o.CompletionSeconds, o.ErrorCount, o.RetryAttempts, o.CostActualCents, o.UserSatisfaction, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task outcome for routing_id %s: %w", o.RoutingID, err)
	}
	return nil
}

// UpsertSpecialization implements learning.Store.
func (s *Store) UpsertSpecialization(ctx context.Context, spec learning.Specialization) error {
	const query = `
		INSERT INTO agent_specializations (agent_id, specialization_type, confidence, performance_advantage, sample_size, discovered_at, last_validated, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id, specialization_type)
		DO UPDATE SET confidence = EXCLUDED.confidence, performance_advantage = EXCLUDED.performance_advantage,
			sample_size = EXCLUDED.sample_size, last_validated = EXCLUDED.last_validated, is_active = EXCLUDED.is_active`

	_, err := s.db.ExecContext(ctx, query, spec.AgentID, spec.SpecializationType, spec.Confidence, spec.PerformanceAdvantage, spec.SampleSize, spec.DiscoveredAt, spec.LastValidated, spec.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert specialization for %s/%s: %w", spec.AgentID, spec.SpecializationType, err)
	}
	return nil
}

// SaveOptimizationSnapshot implements learning.Store. The new snapshot is
// activated in the same transaction that deactivates the prior one, so
// readers never observe zero or two active snapshots (§5 ordering
// guarantee).
func (s *Store) SaveOptimizationSnapshot(ctx context.Context, opt learning.RoutingOptimization) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin optimization snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE routing_optimizations SET is_active = false WHERE is_active = true`); err != nil {
		return fmt.Errorf("failed to deactivate prior optimization snapshot: %w", err)
	}

	const insert = `
		INSERT INTO routing_optimizations (version, performance_improvement, confidence_lower, confidence_upper, method, sample_size, applied_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)`
	if _, err := tx.ExecContext(ctx, insert, opt.Version, opt.PerformanceImprovement, opt.ConfidenceLower, opt.ConfidenceUpper, opt.Method, opt.SampleSize, opt.AppliedAt); err != nil {
		return fmt.Errorf("failed to insert optimization snapshot %s: %w", opt.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit optimization snapshot %s: %w", opt.Version, err)
	}
	return nil
}

// SavePrediction implements learning.Store.
func (s *Store) SavePrediction(ctx context.Context, p learning.SuccessPrediction) error {
	const query = `
		INSERT INTO success_predictions (agent_id, task_type, complexity, predicted_rate, confidence_lower, confidence_upper, prediction_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query, p.AgentID, p.TaskType, p.Complexity, p.PredictedRate, p.ConfidenceLower, p.ConfidenceUpper, p.PredictionModel, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save prediction for %s/%s_%s: %w", p.AgentID, p.TaskType, p.Complexity, err)
	}
	return nil
}

// ActiveSpecializations implements learning.Store.
func (s *Store) ActiveSpecializations(ctx context.Context, agentID string) ([]learning.Specialization, error) {
	const query = `
		SELECT agent_id, specialization_type, confidence, performance_advantage, sample_size, discovered_at, last_validated, is_active
		FROM agent_specializations WHERE agent_id = $1 AND is_active = true`

	var rows []struct {
		AgentID              string  `db:"agent_id"`
		SpecializationType   string  `db:"specialization_type"`
		Confidence           float64 `db:"confidence"`
		PerformanceAdvantage float64 `db:"performance_advantage"`
		SampleSize           int     `db:"sample_size"`
		IsActive             bool    `db:"is_active"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, agentID); err != nil {
		return nil, fmt.Errorf("failed to load active specializations for %s: %w", agentID, err)
	}

	out := make([]learning.Specialization, 0, len(rows))
	for _, r := range rows {
		out = append(out, learning.Specialization{
			AgentID:              r.AgentID,
			SpecializationType:   r.SpecializationType,
			Confidence:           r.Confidence,
			PerformanceAdvantage: r.PerformanceAdvantage,
			SampleSize:           r.SampleSize,
			IsActive:             r.IsActive,
		})
	}
	return out, nil
}

// WriteSnapshot implements loops.SnapshotWriter.
func (s *Store) WriteSnapshot(ctx context.Context, agentID string, loadCount int, loadRatio float64, breakerState breaker.Snapshot) error {
	const query = `
		INSERT INTO performance_snapshots (agent_id, load_count, load_ratio, breaker_state, failure_count, success_count, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`

	_, err := s.db.ExecContext(ctx, query, agentID, loadCount, loadRatio, string(breakerState.State), breakerState.FailureCount, breakerState.SuccessCount)
	if err != nil {
		return fmt.Errorf("failed to write performance snapshot for %s: %w", agentID, err)
	}
	return nil
}
