package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateStopRequest(ctx context.Context, r *StopRequest) error {
	if (r.DAGID == nil) == (r.ExecutionID == nil) {
		return ErrInvalidStopRequest
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = StopRequestPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stop_requests (id, dag_id, execution_id, status, requested_at, handled_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.DAGID), nullString(r.ExecutionID), r.Status,
		r.RequestedAt.Format(time.RFC3339Nano), nullTime(r.HandledAt))
	if err != nil {
		return fmt.Errorf("store: create stop request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PendingForDAG(ctx context.Context, dagID string) (*StopRequest, error) {
	row := s.db.QueryRowContext(ctx, stopRequestSelectCols+`
		FROM stop_requests WHERE dag_id = ? AND status = ? ORDER BY requested_at DESC LIMIT 1`,
		dagID, StopRequestPending)
	return scanOptionalStopRequest(row)
}

func (s *SQLiteStore) PendingForExecution(ctx context.Context, executionID string) (*StopRequest, error) {
	row := s.db.QueryRowContext(ctx, stopRequestSelectCols+`
		FROM stop_requests WHERE execution_id = ? AND status = ? ORDER BY requested_at DESC LIMIT 1`,
		executionID, StopRequestPending)
	return scanOptionalStopRequest(row)
}

func (s *SQLiteStore) MarkHandled(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stop_requests SET status = ?, handled_at = ? WHERE id = ?`,
		StopRequestHandled, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("store: mark stop request handled: %w", err)
	}
	return checkRowsAffected(res, ErrStopRequestNotFound)
}

const stopRequestSelectCols = `SELECT id, dag_id, execution_id, status, requested_at, handled_at`

func scanOptionalStopRequest(row rowScanner) (*StopRequest, error) {
	var r StopRequest
	var dagID, execID sql.NullString
	var requestedAt string
	var handledAt sql.NullString

	if err := row.Scan(&r.ID, &dagID, &execID, &r.Status, &requestedAt, &handledAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if dagID.Valid {
		r.DAGID = &dagID.String
	}
	if execID.Valid {
		r.ExecutionID = &execID.String
	}
	var perr error
	if r.RequestedAt, perr = time.Parse(time.RFC3339Nano, requestedAt); perr != nil {
		return nil, perr
	}
	if r.HandledAt, perr = parseNullTime(handledAt); perr != nil {
		return nil, perr
	}
	return &r, nil
}
