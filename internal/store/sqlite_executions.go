package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateExecution(ctx context.Context, e *Execution) error {
	if e.ID == "" {
		e.ID = newID()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	return s.upsertExecution(ctx, e, true)
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, e *Execution) error {
	e.UpdatedAt = time.Now().UTC()
	return s.upsertExecution(ctx, e, false)
}

func (s *SQLiteStore) upsertExecution(ctx context.Context, e *Execution, insert bool) error {
	usage, err := marshalJSON(e.TotalUsage)
	if err != nil {
		return err
	}
	if insert {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dag_executions (id, dag_id, original_request, primary_intent, status, started_at,
				completed_at, duration_ms, total_tasks, completed_tasks, failed_tasks, waiting_tasks,
				final_result, synthesis_result, suspended_reason, suspended_at, retry_count, last_retry_at,
				total_usage, total_cost_usd, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.DAGID, e.OriginalRequest, e.PrimaryIntent, e.Status, nullTime(e.StartedAt),
			nullTime(e.CompletedAt), e.DurationMs, e.TotalTasks, e.CompletedTasks, e.FailedTasks, e.WaitingTasks,
			e.FinalResult, e.SynthesisResult, e.SuspendedReason, nullTime(e.SuspendedAt), e.RetryCount, nullTime(e.LastRetryAt),
			usage, e.TotalCostUSD, e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("store: create execution: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE dag_executions SET original_request=?, primary_intent=?, status=?, started_at=?, completed_at=?,
			duration_ms=?, total_tasks=?, completed_tasks=?, failed_tasks=?, waiting_tasks=?, final_result=?,
			synthesis_result=?, suspended_reason=?, suspended_at=?, retry_count=?, last_retry_at=?, total_usage=?,
			total_cost_usd=?, updated_at=?
		WHERE id = ?`,
		e.OriginalRequest, e.PrimaryIntent, e.Status, nullTime(e.StartedAt), nullTime(e.CompletedAt),
		e.DurationMs, e.TotalTasks, e.CompletedTasks, e.FailedTasks, e.WaitingTasks, e.FinalResult,
		e.SynthesisResult, e.SuspendedReason, nullTime(e.SuspendedAt), e.RetryCount, nullTime(e.LastRetryAt), usage,
		e.TotalCostUSD, e.UpdatedAt.Format(time.RFC3339Nano), e.ID)
	if err != nil {
		return fmt.Errorf("store: update execution: %w", err)
	}
	return checkRowsAffected(res, ErrExecutionNotFound)
}

const executionSelectCols = `SELECT id, dag_id, original_request, primary_intent, status, started_at, completed_at,
	duration_ms, total_tasks, completed_tasks, failed_tasks, waiting_tasks, final_result, synthesis_result,
	suspended_reason, suspended_at, retry_count, last_retry_at, total_usage, total_cost_usd, created_at, updated_at`

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, executionSelectCols+` FROM dag_executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, ErrExecutionNotFound
	}
	return e, err
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	query := executionSelectCols + ` FROM dag_executions WHERE 1=1`
	var args []any
	if filter.DAGID != "" {
		query += ` AND dag_id = ?`
		args = append(args, filter.DAGID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	defer rows.Close()
	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteExecution(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dag_executions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete execution: %w", err)
	}
	return checkRowsAffected(res, ErrExecutionNotFound)
}

func scanExecution(row rowScanner) (*Execution, error) {
	var e Execution
	var startedAt, completedAt, suspendedAt, lastRetryAt sql.NullString
	var usage sql.NullString
	var totalCost sql.NullString
	var created, updated string

	if err := row.Scan(&e.ID, &e.DAGID, &e.OriginalRequest, &e.PrimaryIntent, &e.Status, &startedAt, &completedAt,
		&e.DurationMs, &e.TotalTasks, &e.CompletedTasks, &e.FailedTasks, &e.WaitingTasks, &e.FinalResult,
		&e.SynthesisResult, &e.SuspendedReason, &suspendedAt, &e.RetryCount, &lastRetryAt, &usage, &totalCost,
		&created, &updated); err != nil {
		return nil, err
	}
	if totalCost.Valid {
		e.TotalCostUSD = &totalCost.String
	}
	if err := unmarshalJSON(usage, &e.TotalUsage); err != nil {
		return nil, err
	}
	var perr error
	if e.StartedAt, perr = parseNullTime(startedAt); perr != nil {
		return nil, perr
	}
	if e.CompletedAt, perr = parseNullTime(completedAt); perr != nil {
		return nil, perr
	}
	if e.SuspendedAt, perr = parseNullTime(suspendedAt); perr != nil {
		return nil, perr
	}
	if e.LastRetryAt, perr = parseNullTime(lastRetryAt); perr != nil {
		return nil, perr
	}
	if e.CreatedAt, perr = time.Parse(time.RFC3339Nano, created); perr != nil {
		return nil, perr
	}
	if e.UpdatedAt, perr = time.Parse(time.RFC3339Nano, updated); perr != nil {
		return nil, perr
	}
	return &e, nil
}
