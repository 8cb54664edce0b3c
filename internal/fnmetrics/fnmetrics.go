// Package fnmetrics tracks per-function invocation statistics.
package fnmetrics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/database"
	"github.com/splinter-dev/splinter/internal/metrics"
)

// FunctionMetrics is the aggregate execution record for one function.
type FunctionMetrics struct {
	FunctionID      string     `json:"functionId"`
	InvocationCount int64      `json:"invocationCount"`
	SuccessCount    int64      `json:"successCount"`
	FailureCount    int64      `json:"failureCount"`
	TotalDurationMs int64      `json:"totalDurationMs"`
	MinDurationMs   int64      `json:"minDurationMs"`
	MaxDurationMs   int64      `json:"maxDurationMs"`
	LastInvokedAt   *time.Time `json:"lastInvokedAt,omitempty"`
}

// AvgDurationMs returns the mean execution time, zero before the first
// invocation.
func (m *FunctionMetrics) AvgDurationMs() float64 {
	if m.InvocationCount == 0 {
		return 0
	}
	return float64(m.TotalDurationMs) / float64(m.InvocationCount)
}

// Store persists function metrics rows.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Init creates an empty metrics row for a newly deployed function. It
// is a no-op if the row already exists.
func (s *Store) Init(ctx context.Context, functionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO function_metrics (function_id) VALUES (?)
		ON CONFLICT (function_id) DO NOTHING
	`, functionID)
	if err != nil {
		return apperr.Deployment("metrics_init", err, "failed to initialize metrics for %s", functionID)
	}
	return nil
}

// FindByFunctionID returns the metrics row for a function.
func (s *Store) FindByFunctionID(ctx context.Context, functionID string) (*FunctionMetrics, error) {
	var (
		m    FunctionMetrics
		last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT function_id, invocation_count, success_count, failure_count,
		       total_duration_ms, min_duration_ms, max_duration_ms, last_invoked_at
		FROM function_metrics WHERE function_id = ?
	`, functionID).Scan(
		&m.FunctionID, &m.InvocationCount, &m.SuccessCount, &m.FailureCount,
		&m.TotalDurationMs, &m.MinDurationMs, &m.MaxDurationMs, &last,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("metrics_not_found", "no metrics for function %s", functionID)
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		if t, err := time.Parse(time.RFC3339, last.String); err == nil {
			m.LastInvokedAt = &t
		}
	}
	return &m, nil
}

// RecordExecution folds one invocation into the aggregate row. A zero
// min duration means the row has never been invoked, so the first
// sample always sets it.
func (s *Store) RecordExecution(ctx context.Context, functionID string, durationMs int64, success bool) error {
	successInc := 0
	failureInc := 0
	if success {
		successInc = 1
	} else {
		failureInc = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO function_metrics (
			function_id, invocation_count, success_count, failure_count,
			total_duration_ms, min_duration_ms, max_duration_ms, last_invoked_at
		) VALUES (?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (function_id) DO UPDATE SET
			invocation_count = invocation_count + 1,
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			total_duration_ms = total_duration_ms + excluded.total_duration_ms,
			min_duration_ms = CASE
				WHEN min_duration_ms = 0 OR excluded.min_duration_ms < min_duration_ms
				THEN excluded.min_duration_ms ELSE min_duration_ms END,
			max_duration_ms = CASE
				WHEN excluded.max_duration_ms > max_duration_ms
				THEN excluded.max_duration_ms ELSE max_duration_ms END,
			last_invoked_at = excluded.last_invoked_at
	`, functionID, successInc, failureInc, durationMs, durationMs, durationMs, now)
	if err != nil {
		return apperr.Deployment("metrics_record", err, "failed to record execution for %s", functionID)
	}
	return nil
}

// Delete removes the metrics row for an undeployed function.
func (s *Store) Delete(ctx context.Context, functionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM function_metrics WHERE function_id = ?`, functionID)
	return err
}

// Service records executions to the database and prometheus in one
// call.
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) Init(ctx context.Context, functionID string) error {
	return s.store.Init(ctx, functionID)
}

func (s *Service) FindByFunctionID(ctx context.Context, functionID string) (*FunctionMetrics, error) {
	return s.store.FindByFunctionID(ctx, functionID)
}

// RecordExecution persists the sample and bumps the prometheus
// invocation counters.
func (s *Service) RecordExecution(ctx context.Context, functionID, functionName, runtime string, duration time.Duration, success bool) error {
	status := "success"
	if !success {
		status = "failure"
	}
	metrics.RecordFunctionInvocation(functionName, runtime, status, duration)
	return s.store.RecordExecution(ctx, functionID, duration.Milliseconds(), success)
}
