// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps a SQLite ledger of workflow runs. It records
// outcomes only; runs are never resumed from it.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litflow/pkg/types"
)

const (
	table         = "workflow_runs"
	maxErrorChars = 500

	// Fixed width so text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Run statuses beyond running mirror how a run ended.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusAborted = "aborted"
	StatusError   = "error"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one ledger row.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Mode       string    `json:"mode" yaml:"mode"`
	Status     string    `json:"status" yaml:"status"`
	InputHash  string    `json:"input_hash" yaml:"input_hash"`
	Config     string    `json:"config" yaml:"config"`
	Count      int       `json:"count" yaml:"count"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Store is the run ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path and creates the schema if it
// does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			input_hash TEXT,
			config_json TEXT,
			record_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_started ON workflow_runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// InputHash returns the hex SHA-256 of the run input.
func InputHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Begin records a run as running. config is stored as JSON.
func (s *Store) Begin(ctx context.Context, runID string, mode types.Mode, input string, config any) error {
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config snapshot: %w", err)
	}
	query, args, err := sq.Insert(table).
		Columns("id", "mode", "status", "input_hash", "config_json", "started_at").
		Values(runID, string(mode), StatusRunning, InputHash(input), string(cfgJSON), formatTime(s.now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting run %s: %w", runID, err)
	}
	return nil
}

// Finish records how a run ended.
func (s *Store) Finish(ctx context.Context, runID, status string, count int, errMsg string) error {
	if len(errMsg) > maxErrorChars {
		errMsg = errMsg[:maxErrorChars]
	}
	query, args, err := sq.Update(table).
		Set("status", status).
		Set("record_count", count).
		Set("error_message", errMsg).
		Set("finished_at", formatTime(s.now())).
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing %s: %w", runID, ErrNotFound)
	}
	return nil
}

// FinishResult records the outcome of a coordinator run.
func (s *Store) FinishResult(ctx context.Context, runID string, result *types.WorkflowResult, runErr error) error {
	switch {
	case runErr != nil:
		return s.Finish(ctx, runID, StatusError, 0, runErr.Error())
	case result == nil:
		return s.Finish(ctx, runID, StatusError, 0, "no result")
	case result.Aborted:
		return s.Finish(ctx, runID, StatusAborted, result.Count, "")
	case result.Failed():
		return s.Finish(ctx, runID, StatusPartial, result.Count, result.Message)
	default:
		return s.Finish(ctx, runID, StatusSuccess, result.Count, "")
	}
}

var runColumns = []string{
	"id", "mode", "status", "input_hash", "config_json",
	"record_count", "error_message", "started_at", "finished_at",
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := sq.Select(runColumns...).
		From(table).
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	query, args, err := sq.Select(runColumns...).From(table).Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return Run{}, fmt.Errorf("building select: %w", err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                       Run
		inputHash, config, errMsg sql.NullString
		startedAt, finishedAt     sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Mode, &run.Status, &inputHash, &config,
		&run.Count, &errMsg, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	run.InputHash = inputHash.String
	run.Config = config.String
	run.Error = errMsg.String
	run.StartedAt = parseTime(startedAt.String)
	run.FinishedAt = parseTime(finishedAt.String)
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
