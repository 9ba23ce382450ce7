// Package sqlite keeps a ledger of pipeline runs, judge verdicts and
// correction loop iterations so progress can be compared across runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/steveyegge/diyqa/internal/types"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Ledger is the SQLite run ledger.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Run is one recorded command invocation.
type Run struct {
	ID          string
	Command     string
	Provider    string
	Model       string
	Status      string
	Records     int
	FailureRate *float64
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Iteration is one recorded pass of the correction loop.
type Iteration struct {
	Iteration     int
	TotalRecords  int
	FailedRecords int
	Corrected     int
	FailureRate   float64
	CreatedAt     time.Time
}

// Open creates or opens the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun records a new running command and returns its id.
func (l *Ledger) StartRun(ctx context.Context, command, provider, model string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, command, provider, model, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, command, provider, model, StatusRunning, formatTime(l.now()))
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run. A non-nil runErr marks it failed.
func (l *Ledger) FinishRun(ctx context.Context, id string, records int, failureRate *float64, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	var rate sql.NullFloat64
	if failureRate != nil {
		rate = sql.NullFloat64{Float64: *failureRate, Valid: true}
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, records = ?, failure_rate = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, records, rate, msg, formatTime(l.now()), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordJudgeRows stores every mode verdict of rows under runID.
func (l *Ledger) RecordJudgeRows(ctx context.Context, runID string, rows []types.JudgeRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO judge_rows (run_id, trace_id, mode, score, response)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		for i, m := range types.FailureModes {
			if _, err := stmt.ExecContext(ctx, runID, r.TraceID, string(m), r.Scores[i], r.Responses[i]); err != nil {
				return fmt.Errorf("failed to record %s/%s: %w", r.TraceID, m, err)
			}
		}
	}
	return tx.Commit()
}

// ModeFailureCounts returns, per mode, how many records of runID failed it.
func (l *Ledger) ModeFailureCounts(ctx context.Context, runID string) (map[types.FailureMode]int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT mode, SUM(score) FROM judge_rows WHERE run_id = ? GROUP BY mode
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query judge rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[types.FailureMode]int, types.NumModes)
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("failed to scan judge row: %w", err)
		}
		counts[types.FailureMode(mode)] = n
	}
	return counts, rows.Err()
}

// RecordIteration stores one loop pass.
func (l *Ledger) RecordIteration(ctx context.Context, runID string, it Iteration) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = l.now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO loop_iterations
			(run_id, iteration, total_records, failed_records, corrected, failure_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, it.Iteration, it.TotalRecords, it.FailedRecords, it.Corrected, it.FailureRate, formatTime(it.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record iteration: %w", err)
	}
	return nil
}

// Iterations returns the loop passes of runID in order.
func (l *Ledger) Iterations(ctx context.Context, runID string) ([]Iteration, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT iteration, total_records, failed_records, corrected, failure_rate, created_at
		FROM loop_iterations
		WHERE run_id = ?
		ORDER BY iteration ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Iteration
	for rows.Next() {
		var it Iteration
		var created string
		if err := rows.Scan(&it.Iteration, &it.TotalRecords, &it.FailedRecords, &it.Corrected, &it.FailureRate, &created); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		if it.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetRun returns one run.
func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := selectRuns + ` ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const selectRuns = `
	SELECT id, command, provider, model, status, records, failure_rate, error, started_at, finished_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	r := &Run{}
	var rate sql.NullFloat64
	var started string
	var finished sql.NullString

	err := s.Scan(&r.ID, &r.Command, &r.Provider, &r.Model, &r.Status, &r.Records, &rate, &r.Error, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if rate.Valid {
		r.FailureRate = &rate.Float64
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
