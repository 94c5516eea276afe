package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"routeopt/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every *.sql file in dir in lexical order. Applied
// files are recorded in schema_migrations and skipped on later calls.
func (p *Postgres) MigrateDir(dir string) error {
	ctx := context.Background()
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		version := filepath.Base(f)
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists); err != nil {
			return fmt.Errorf("migrate %s: %w", version, err)
		}
		if exists {
			continue
		}
		body, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate %s: %w", version, err)
		}
	}
	return nil
}

const runColumns = `id::text, tenant_id, status, request, points, config, result, error, created_at, started_at, finished_at`

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) error {
	req, pts, cfg, res, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, status, request, points, config, result, error, created_at, started_at, finished_at)
        VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9, $10, $11)`,
		run.ID, run.TenantID, string(run.Status), req, pts, cfg, res, nullIfEmpty(run.Error), run.CreatedAt, run.StartedAt, run.FinishedAt)
	return err
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
	req, pts, cfg, res, err := encodeRun(run)
	if err != nil {
		return err
	}
	tag, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$3, request=$4::jsonb, points=$5::jsonb, config=$6::jsonb, result=$7::jsonb,
        error=$8, started_at=$9, finished_at=$10 WHERE id=$1 AND tenant_id=$2`,
		run.ID, run.TenantID, string(run.Status), req, pts, cfg, res, nullIfEmpty(run.Error), run.StartedAt, run.FinishedAt)
	if err != nil {
		return err
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id::text=$1 AND tenant_id=$2`, id, tenantID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID string, status model.RunStatus, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + runColumns + ` FROM runs WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, string(status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND seq > (SELECT seq FROM runs WHERE id::text=$%d)", len(args))
	}
	// one extra row tells whether another page exists
	args = append(args, limit+1)
	q += fmt.Sprintf(" ORDER BY seq LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.ConfigOverrides, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg model.ConfigOverrides
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg *model.ConfigOverrides) error {
	if cfg.IsZero() {
		_, err := p.db.ExecContext(ctx, `DELETE FROM optimizer_config WHERE tenant_id=$1`, tenantID)
		return err
	}
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2::jsonb, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=EXCLUDED.config, updated_at=now()`, tenantID, string(js))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var (
		r                  model.Run
		status             string
		req, pts, cfg, res []byte
		errText            sql.NullString
		started, finished  sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.TenantID, &status, &req, &pts, &cfg, &res, &errText, &r.CreatedAt, &started, &finished); err != nil {
		return model.Run{}, err
	}
	r.Status = model.RunStatus(status)
	r.Error = errText.String
	if started.Valid {
		t := started.Time
		r.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{{req, &r.Request}, {pts, &r.Points}, {cfg, &r.Config}, {res, &r.Result}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return model.Run{}, fmt.Errorf("decode run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// encodeRun marshals the JSONB columns. An absent result is stored as NULL.
func encodeRun(run model.Run) (req, pts, cfg string, res any, err error) {
	b, err := json.Marshal(run.Request)
	if err != nil {
		return "", "", "", nil, err
	}
	req = string(b)
	if b, err = json.Marshal(run.Points); err != nil {
		return "", "", "", nil, err
	}
	pts = string(b)
	if b, err = json.Marshal(run.Config); err != nil {
		return "", "", "", nil, err
	}
	cfg = string(b)
	if run.Result != nil {
		if b, err = json.Marshal(run.Result); err != nil {
			return "", "", "", nil, err
		}
		res = string(b)
	}
	return req, pts, cfg, res, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
