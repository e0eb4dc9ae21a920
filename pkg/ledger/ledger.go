// Package ledger records pipeline runs in SQLite or Postgres so operators
// can see what ran, when, and with what outcome.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register sqlite as a database/sql driver

	"github.com/agentstation/clinmap/pkg/errors"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDryRun    = "dry-run"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one recorded pipeline execution.
type Run struct {
	ID         string        `json:"id" yaml:"id"`
	Pipeline   string        `json:"pipeline" yaml:"pipeline"`
	Status     string        `json:"status" yaml:"status"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Inputs     int           `json:"inputs" yaml:"inputs"`
	Outputs    int           `json:"outputs" yaml:"outputs"`
	Failures   int           `json:"failures" yaml:"failures"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Ledger is a run history backed by database/sql.
type Ledger struct {
	db     *sql.DB
	driver string
}

// Driver returns the database/sql driver name and data source for dsn.
// postgres:// and postgresql:// select pgx; sqlite:// or a bare path
// selects sqlite.
func Driver(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	default:
		return "sqlite", dsn
	}
}

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, errors.NewValidationError("ledger", dsn, "dsn is required")
	}
	driver, source := Driver(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, errors.NewConfigError("ledger", "open "+driver, err)
	}
	if driver == "sqlite" {
		// one writer; WAL keeps readers of `clinmap history` unblocked
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=10000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("ledger %s: %w", pragma, err)
			}
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	l := &Ledger{db: db, driver: driver}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS clinmap_runs (
	id          TEXT PRIMARY KEY,
	pipeline    TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	inputs      BIGINT NOT NULL,
	outputs     BIGINT NOT NULL,
	failures    BIGINT NOT NULL,
	error       TEXT NOT NULL
)`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	const idx = `CREATE INDEX IF NOT EXISTS clinmap_runs_started ON clinmap_runs (started_at)`
	if _, err := l.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create ledger index: %w", err)
	}
	return nil
}

// Record inserts run, or updates it when the ID is already recorded.
func (l *Ledger) Record(ctx context.Context, run Run) error {
	if run.ID == "" || run.Pipeline == "" {
		return errors.NewValidationError("run", run.ID, "id and pipeline are required")
	}
	if run.Duration == 0 && !run.FinishedAt.IsZero() {
		run.Duration = run.FinishedAt.Sub(run.StartedAt)
	}
	query := l.rebind(`INSERT INTO clinmap_runs
	(id, pipeline, status, started_at, finished_at, duration_ms, inputs, outputs, failures, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
	status = excluded.status, finished_at = excluded.finished_at, duration_ms = excluded.duration_ms,
	inputs = excluded.inputs, outputs = excluded.outputs, failures = excluded.failures, error = excluded.error`)
	_, err := l.db.ExecContext(ctx, query,
		run.ID, run.Pipeline, run.Status,
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Duration.Milliseconds(), run.Inputs, run.Outputs, run.Failures, run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	Pipeline string
	Status   string
	Limit    int
}

const selectRuns = `SELECT id, pipeline, status, started_at, finished_at, duration_ms, inputs, outputs, failures, error FROM clinmap_runs`

// List returns runs, most recent first.
func (l *Ledger) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if opts.Pipeline != "" {
		where = append(where, "pipeline = ?")
		args = append(args, opts.Pipeline)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	query := selectRuns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(opts.Limit)
	}
	return l.query(ctx, query, args...)
}

// Get returns a single run.
func (l *Ledger) Get(ctx context.Context, id string) (Run, error) {
	runs, err := l.query(ctx, selectRuns+" WHERE id = ?", id)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, errors.NewNotFoundError("run", id)
	}
	return runs[0], nil
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished string
			durationMs        int64
		)
		if err := rows.Scan(&run.ID, &run.Pipeline, &run.Status, &started, &finished,
			&durationMs, &run.Inputs, &run.Outputs, &run.Failures, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// rebind converts ? placeholders to $n for Postgres.
func (l *Ledger) rebind(query string) string {
	if l.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
