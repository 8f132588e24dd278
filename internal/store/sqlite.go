package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on top of database/sql and
// modernc.org/sqlite, with schema managed by goose migrations.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and brings
// its schema up to date via goose. path may be ":memory:" for tests, in
// which case a single pooled connection is forced so the in-memory
// database is not dropped between queries.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func newID() string { return uuid.NewString() }

func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalJSON[T any](raw sql.NullString, out *T) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), out)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// --- agents ---------------------------------------------------------------

func (s *SQLiteStore) CreateAgent(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		a.ID = newID()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	meta, err := marshalJSON(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, version, prompt_template, provider, model, active, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Version, a.PromptTemplate, a.Provider, a.Model, boolToInt(a.Active), meta,
		a.CreatedAt.Format(time.RFC3339Nano), a.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: create agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, prompt_template, provider, model, active, metadata, created_at, updated_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *SQLiteStore) GetActiveAgentByName(ctx context.Context, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, prompt_template, provider, model, active, metadata, created_at, updated_at
		FROM agents WHERE name = ? AND active = 1`, name)
	return scanAgent(row)
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, prompt_template, provider, model, active, metadata, created_at, updated_at
		FROM agents ORDER BY name, version`)
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()
	var out []*Agent
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Activate sets agent id active and deactivates every other agent sharing
// its name, inside a single transaction so the P7 invariant never
// observes two active rows for the same name.
func (s *SQLiteStore) Activate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var name string
	if err := tx.QueryRowContext(ctx, `SELECT name FROM agents WHERE id = ?`, id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return ErrAgentNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET active = 0, updated_at = ? WHERE name = ? AND active = 1`,
		time.Now().UTC().Format(time.RFC3339Nano), name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET active = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, a *Agent) error {
	a.UpdatedAt = time.Now().UTC()
	meta, err := marshalJSON(a.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET name=?, version=?, prompt_template=?, provider=?, model=?, active=?, metadata=?, updated_at=?
		WHERE id = ?`,
		a.Name, a.Version, a.PromptTemplate, a.Provider, a.Model, boolToInt(a.Active), meta,
		a.UpdatedAt.Format(time.RFC3339Nano), a.ID)
	if err != nil {
		return fmt.Errorf("store: update agent: %w", err)
	}
	return checkRowsAffected(res, ErrAgentNotFound)
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete agent: %w", err)
	}
	return checkRowsAffected(res, ErrAgentNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	a, err := scanAgentRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	return a, err
}

func scanAgentRow(row rowScanner) (*Agent, error) {
	var a Agent
	var active int
	var meta sql.NullString
	var created, updated string
	if err := row.Scan(&a.ID, &a.Name, &a.Version, &a.PromptTemplate, &a.Provider, &a.Model, &active, &meta, &created, &updated); err != nil {
		return nil, err
	}
	a.Active = active != 0
	if err := unmarshalJSON(meta, &a.Metadata); err != nil {
		return nil, err
	}
	var perr error
	if a.CreatedAt, perr = time.Parse(time.RFC3339Nano, created); perr != nil {
		return nil, perr
	}
	if a.UpdatedAt, perr = time.Parse(time.RFC3339Nano, updated); perr != nil {
		return nil, perr
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
