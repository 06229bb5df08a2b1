package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/apperror"
	domain "github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

const (
	dateFormat      = "2006-01-02"
	timestampFormat = "2006-01-02T15:04:05Z"
)

const runColumns = `id, trigger_kind, run_date, status, symbols, loaded, skipped, error, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, run *domain.Run) error {
	const query = `INSERT INTO runs (trigger_kind, run_date, status, symbols) VALUES (?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		string(run.Trigger), run.RunDate.Format(dateFormat), string(run.Status), run.Symbols)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	run.ID, _ = res.LastInsertId()
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	return nil
}

func (r *Repository) Update(ctx context.Context, run *domain.Run) error {
	const query = `UPDATE runs SET status = ?, symbols = ?, loaded = ?, skipped = ?, error = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		string(run.Status), run.Symbols, run.Loaded, run.Skipped, runErr, run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	run.Results, err = r.results(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Repository) List(ctx context.Context, status domain.Status, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`

	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *Repository) FindActive(ctx context.Context, runDate time.Time) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE run_date = ? AND status IN ('pending', 'running')
		ORDER BY id ASC LIMIT 1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, runDate.Format(dateFormat)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active run: %w", err)
	}
	return run, nil
}

func (r *Repository) ClaimPending(ctx context.Context) (*domain.Run, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE status = 'pending' ORDER BY id ASC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET status = 'running', updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND status = 'pending'`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}

	return r.Get(ctx, id)
}

// Touch refreshes the heartbeat of a running run.
func (r *Repository) Touch(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND status = 'running'`, id)
	if err != nil {
		return fmt.Errorf("touch run: %w", err)
	}
	return nil
}

// RecoverStale re-queues runs whose heartbeat stopped before the cutoff.
// Their partial results are discarded; the rerun rewrites them.
func (r *Repository) RecoverStale(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(timestampFormat)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("recover stale runs: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_symbols WHERE run_id IN
			(SELECT id FROM runs WHERE status = 'running' AND updated_at < ?)`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("recover stale runs: clear results: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE runs SET status = 'pending', error = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stale runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("recover stale runs: commit: %w", err)
	}
	return res.RowsAffected()
}

// TakeOver claims run id for the caller if it is pending, or running with a
// heartbeat older than before. It reports false when another process still
// owns the run.
func (r *Repository) TakeOver(ctx context.Context, id int64, before time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("take over run: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE runs SET status = 'running', error = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND (status = 'pending' OR (status = 'running' AND updated_at < ?))`,
		id, before.UTC().Format(timestampFormat))
	if err != nil {
		return false, fmt.Errorf("take over run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_symbols WHERE run_id = ?`, id); err != nil {
		return false, fmt.Errorf("take over run: clear results: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("take over run: commit: %w", err)
	}
	return true, nil
}

// SaveResults replaces the per-symbol results of a run.
func (r *Repository) SaveResults(ctx context.Context, runID int64, results []domain.SymbolResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save results: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_symbols WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("save results: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_symbols
		(run_id, position, symbol, status, reason, dropped, archived, archive_key, matched, inserted, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save results: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, res := range results {
		if _, err := stmt.ExecContext(ctx,
			runID, i, res.Symbol, string(res.Status), nullString(res.Reason),
			res.Dropped, res.Archived, nullString(res.ArchiveKey),
			res.Upsert.Matched, res.Upsert.Inserted, res.Upsert.Modified,
		); err != nil {
			return fmt.Errorf("save result %s: %w", res.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save results: commit: %w", err)
	}
	return nil
}

func (r *Repository) results(ctx context.Context, runID int64) ([]domain.SymbolResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, status, reason, dropped, archived, archive_key,
		matched, inserted, modified
		FROM run_symbols WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SymbolResult
	for rows.Next() {
		var res domain.SymbolResult
		var status string
		var reason, key sql.NullString
		if err := rows.Scan(&res.Symbol, &status, &reason, &res.Dropped, &res.Archived, &key,
			&res.Upsert.Matched, &res.Upsert.Inserted, &res.Upsert.Modified,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Status = domain.SymbolStatus(status)
		res.Reason = reason.String
		res.ArchiveKey = key.String
		out = append(out, res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Run, error) {
	var run domain.Run
	var trigger, runDate, status, createdStr, updatedStr string
	var runErr sql.NullString

	if err := s.Scan(&run.ID, &trigger, &runDate, &status,
		&run.Symbols, &run.Loaded, &run.Skipped, &runErr,
		&createdStr, &updatedStr,
	); err != nil {
		return nil, err
	}

	run.Trigger = domain.Trigger(trigger)
	run.Status = domain.Status(status)
	run.Error = runErr.String
	run.RunDate, _ = time.Parse(dateFormat, runDate)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
