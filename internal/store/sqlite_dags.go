package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) CreateDAG(ctx context.Context, d *DAG) error {
	if d.ID == "" {
		d.ID = newID()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	return s.upsertDAG(ctx, d, true)
}

func (s *SQLiteStore) UpdateDAG(ctx context.Context, d *DAG) error {
	d.UpdatedAt = time.Now().UTC()
	return s.upsertDAG(ctx, d, false)
}

func (s *SQLiteStore) upsertDAG(ctx context.Context, d *DAG, insert bool) error {
	result, err := marshalJSON(d.Result)
	if err != nil {
		return err
	}
	usage, err := marshalJSON(d.Usage)
	if err != nil {
		return err
	}
	genStats, err := marshalJSON(d.GenerationStats)
	if err != nil {
		return err
	}
	params, err := marshalJSON(d.Params)
	if err != nil {
		return err
	}
	planningUsage, err := marshalJSON(d.PlanningTotalUsage)
	if err != nil {
		return err
	}
	attempts, err := marshalJSON(d.PlanningAttempts)
	if err != nil {
		return err
	}

	if insert {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dags (id, status, result, usage, generation_stats, attempts, params, agent_name,
				dag_title, cron_schedule, schedule_active, last_run_at, timezone,
				planning_total_usage, planning_total_cost_usd, planning_attempts, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			d.ID, d.Status, result, usage, genStats, d.Attempts, params, d.AgentName,
			d.DAGTitle, d.CronSchedule, boolToInt(d.ScheduleActive), nullTime(d.LastRunAt), orDefault(d.Timezone, "UTC"),
			planningUsage, nullString(&d.PlanningTotalCostUSD), attempts,
			d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("store: create dag: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE dags SET status=?, result=?, usage=?, generation_stats=?, attempts=?, params=?, agent_name=?,
			dag_title=?, cron_schedule=?, schedule_active=?, last_run_at=?, timezone=?,
			planning_total_usage=?, planning_total_cost_usd=?, planning_attempts=?, updated_at=?
		WHERE id = ?`,
		d.Status, result, usage, genStats, d.Attempts, params, d.AgentName,
		d.DAGTitle, d.CronSchedule, boolToInt(d.ScheduleActive), nullTime(d.LastRunAt), orDefault(d.Timezone, "UTC"),
		planningUsage, d.PlanningTotalCostUSD, attempts, d.UpdatedAt.Format(time.RFC3339Nano), d.ID)
	if err != nil {
		return fmt.Errorf("store: update dag: %w", err)
	}
	return checkRowsAffected(res, ErrDAGNotFound)
}

func (s *SQLiteStore) GetDAG(ctx context.Context, id string) (*DAG, error) {
	row := s.db.QueryRowContext(ctx, dagSelectCols+` FROM dags WHERE id = ?`, id)
	d, err := scanDAG(row)
	if err == sql.ErrNoRows {
		return nil, ErrDAGNotFound
	}
	return d, err
}

func (s *SQLiteStore) ListScheduledDAGs(ctx context.Context) ([]*DAG, error) {
	rows, err := s.db.QueryContext(ctx, dagSelectCols+` FROM dags WHERE schedule_active = 1 AND cron_schedule IS NOT NULL AND cron_schedule != ''`)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled dags: %w", err)
	}
	defer rows.Close()
	var out []*DAG
	for rows.Next() {
		d, err := scanDAG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDAG(ctx context.Context, id string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dag_executions WHERE dag_id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("store: check dag in use: %w", err)
	}
	if count > 0 {
		return ErrDAGInUse
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM dags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete dag: %w", err)
	}
	return checkRowsAffected(res, ErrDAGNotFound)
}

const dagSelectCols = `SELECT id, status, result, usage, generation_stats, attempts, params, agent_name,
	dag_title, cron_schedule, schedule_active, last_run_at, timezone,
	planning_total_usage, planning_total_cost_usd, planning_attempts, created_at, updated_at`

func scanDAG(row rowScanner) (*DAG, error) {
	var d DAG
	var result, usage, genStats, params, planningUsage, attempts sql.NullString
	var lastRunAt sql.NullString
	var scheduleActive int
	var planningCost sql.NullString
	var created, updated string

	if err := row.Scan(&d.ID, &d.Status, &result, &usage, &genStats, &d.Attempts, &params, &d.AgentName,
		&d.DAGTitle, &d.CronSchedule, &scheduleActive, &lastRunAt, &d.Timezone,
		&planningUsage, &planningCost, &attempts, &created, &updated); err != nil {
		return nil, err
	}
	d.ScheduleActive = scheduleActive != 0
	d.PlanningTotalCostUSD = planningCost.String

	if err := unmarshalJSON(result, &d.Result); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(usage, &d.Usage); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(genStats, &d.GenerationStats); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(params, &d.Params); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(planningUsage, &d.PlanningTotalUsage); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(attempts, &d.PlanningAttempts); err != nil {
		return nil, err
	}
	var perr error
	if d.LastRunAt, perr = parseNullTime(lastRunAt); perr != nil {
		return nil, perr
	}
	if d.CreatedAt, perr = time.Parse(time.RFC3339Nano, created); perr != nil {
		return nil, perr
	}
	if d.UpdatedAt, perr = time.Parse(time.RFC3339Nano, updated); perr != nil {
		return nil, perr
	}
	return &d, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
