package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateSubStep(ctx context.Context, st *SubStep) error {
	if st.ID == "" {
		st.ID = newID()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	params, err := marshalJSON(st.ToolOrPromptParams)
	if err != nil {
		return err
	}
	deps, err := marshalJSON(st.Dependencies)
	if err != nil {
		return err
	}
	usage, err := marshalJSON(st.Usage)
	if err != nil {
		return err
	}
	genStats, err := marshalJSON(st.GenerationStats)
	if err != nil {
		return err
	}
	result, err := marshalJSON(st.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sub_steps (id, execution_id, task_id, description, thought, action_type, tool_or_prompt_name,
			tool_or_prompt_params, dependencies, status, started_at, completed_at, duration_ms, result, error,
			usage, cost_usd, generation_stats, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		st.ID, st.ExecutionID, st.TaskID, st.Description, st.Thought, st.ActionType, st.ToolOrPromptName,
		params, deps, st.Status, nullTime(st.StartedAt), nullTime(st.CompletedAt), st.DurationMs, result, st.Error,
		usage, st.CostUSD, genStats, st.CreatedAt.Format(time.RFC3339Nano), st.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: create sub-step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSubStep(ctx context.Context, st *SubStep) error {
	st.UpdatedAt = time.Now().UTC()
	params, err := marshalJSON(st.ToolOrPromptParams)
	if err != nil {
		return err
	}
	deps, err := marshalJSON(st.Dependencies)
	if err != nil {
		return err
	}
	usage, err := marshalJSON(st.Usage)
	if err != nil {
		return err
	}
	genStats, err := marshalJSON(st.GenerationStats)
	if err != nil {
		return err
	}
	result, err := marshalJSON(st.Result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sub_steps SET description=?, thought=?, action_type=?, tool_or_prompt_name=?, tool_or_prompt_params=?,
			dependencies=?, status=?, started_at=?, completed_at=?, duration_ms=?, result=?, error=?, usage=?,
			cost_usd=?, generation_stats=?, updated_at=?
		WHERE execution_id = ? AND task_id = ?`,
		st.Description, st.Thought, st.ActionType, st.ToolOrPromptName, params, deps, st.Status,
		nullTime(st.StartedAt), nullTime(st.CompletedAt), st.DurationMs, result, st.Error, usage, st.CostUSD,
		genStats, st.UpdatedAt.Format(time.RFC3339Nano), st.ExecutionID, st.TaskID)
	if err != nil {
		return fmt.Errorf("store: update sub-step: %w", err)
	}
	return checkRowsAffected(res, ErrSubStepNotFound)
}

const subStepSelectCols = `SELECT id, execution_id, task_id, description, thought, action_type, tool_or_prompt_name,
	tool_or_prompt_params, dependencies, status, started_at, completed_at, duration_ms, result, error, usage,
	cost_usd, generation_stats, created_at, updated_at`

func (s *SQLiteStore) GetSubStep(ctx context.Context, executionID, taskID string) (*SubStep, error) {
	row := s.db.QueryRowContext(ctx, subStepSelectCols+` FROM sub_steps WHERE execution_id = ? AND task_id = ?`, executionID, taskID)
	st, err := scanSubStep(row)
	if err == sql.ErrNoRows {
		return nil, ErrSubStepNotFound
	}
	return st, err
}

func (s *SQLiteStore) ListSubSteps(ctx context.Context, executionID string) ([]*SubStep, error) {
	rows, err := s.db.QueryContext(ctx, subStepSelectCols+` FROM sub_steps WHERE execution_id = ? ORDER BY task_id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("store: list sub-steps: %w", err)
	}
	defer rows.Close()
	var out []*SubStep
	for rows.Next() {
		st, err := scanSubStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSubStep(row rowScanner) (*SubStep, error) {
	var st SubStep
	var params, deps, usage, genStats, result sql.NullString
	var startedAt, completedAt sql.NullString
	var costUSD sql.NullString
	var created, updated string

	if err := row.Scan(&st.ID, &st.ExecutionID, &st.TaskID, &st.Description, &st.Thought, &st.ActionType,
		&st.ToolOrPromptName, &params, &deps, &st.Status, &startedAt, &completedAt, &st.DurationMs, &result,
		&st.Error, &usage, &costUSD, &genStats, &created, &updated); err != nil {
		return nil, err
	}
	if costUSD.Valid {
		st.CostUSD = &costUSD.String
	}
	if err := unmarshalJSON(result, &st.Result); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(params, &st.ToolOrPromptParams); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(deps, &st.Dependencies); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(usage, &st.Usage); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(genStats, &st.GenerationStats); err != nil {
		return nil, err
	}
	var perr error
	if st.StartedAt, perr = parseNullTime(startedAt); perr != nil {
		return nil, perr
	}
	if st.CompletedAt, perr = parseNullTime(completedAt); perr != nil {
		return nil, perr
	}
	if st.CreatedAt, perr = time.Parse(time.RFC3339Nano, created); perr != nil {
		return nil, perr
	}
	if st.UpdatedAt, perr = time.Parse(time.RFC3339Nano, updated); perr != nil {
		return nil, perr
	}
	return &st, nil
}
