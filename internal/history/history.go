// Package history keeps a durable ledger of upload runs in SQLite: one row
// per entity kind per run, with the partition counts. The ledger is purely
// observational; failures to record never affect an upload run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/clinicalconnectome/phiup/migrations"
)

// Ledger is the SQLite-backed run history.
type Ledger struct {
	db *sql.DB
}

// RunRecord is one per-kind row of an upload run.
type RunRecord struct {
	RunID      string
	Dataset    string
	Kind       string
	Endpoint   string
	Total      int
	Succeeded  int
	Failed     int
	RetryMode  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunID returns a fresh run identifier shared by all of a run's rows.
func NewRunID() string {
	return ulid.Make().String()
}

// Open opens (creating if needed) the ledger at dbPath, applies pragmas, and
// runs migrations.
func Open(dbPath string) (*Ledger, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// runMigrations applies all pending migrations using goose with the embedded
// SQL files.
func runMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordRun appends one per-kind row to the ledger.
func (l *Ledger) RecordRun(ctx context.Context, rec RunRecord) error {
	retryMode := 0
	if rec.RetryMode {
		retryMode = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO upload_runs
			(run_id, dataset, kind, endpoint, total, succeeded, failed,
			 retry_mode, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Dataset, rec.Kind, rec.Endpoint,
		rec.Total, rec.Succeeded, rec.Failed,
		retryMode,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent rows, newest first, capped at limit
// (0 means no cap).
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, dataset, kind, endpoint, total, succeeded, failed,
		       retry_mode, started_at, finished_at
		FROM upload_runs
		ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var retryMode int
		var started, finished string
		if err := rows.Scan(&rec.RunID, &rec.Dataset, &rec.Kind, &rec.Endpoint,
			&rec.Total, &rec.Succeeded, &rec.Failed,
			&retryMode, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.RetryMode = retryMode != 0
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			rec.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			rec.FinishedAt = t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return records, nil
}
