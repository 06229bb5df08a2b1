package bar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	domain "github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

const dateFormat = "2006-01-02"

const barColumns = `id, symbol, date, open, high, low, close, volume, created_at, updated_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// UpsertBars writes the batch in one transaction. The conflict clause only
// rewrites rows whose values differ, and RETURNING tells the three outcomes
// apart: revision 0 is a fresh insert, a positive revision is a modified
// row, no row at all is a match that was already up to date.
func (r *SQLiteRepository) UpsertBars(ctx context.Context, bars []domain.Bar) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if len(bars) == 0 {
		return res, nil
	}

	const query = `INSERT INTO bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			revision = bars.revision + 1,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE bars.open <> excluded.open
		   OR bars.high <> excluded.high
		   OR bars.low <> excluded.low
		   OR bars.close <> excluded.close
		   OR bars.volume <> excluded.volume
		RETURNING revision`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("upsert bars: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return res, fmt.Errorf("upsert bars: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, b := range bars {
		var revision int64
		err := stmt.QueryRowContext(ctx,
			b.Symbol, b.Date.Format(dateFormat),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		).Scan(&revision)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			res.Matched++
		case err != nil:
			return domain.UpsertResult{}, fmt.Errorf("upsert bar %s %s: %w", b.Symbol, b.Date.Format(dateFormat), err)
		case revision == 0:
			res.Inserted++
		default:
			res.Matched++
			res.Modified++
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("upsert bars: commit: %w", err)
	}
	return res, nil
}

func (r *SQLiteRepository) ListBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	query := `SELECT ` + barColumns + ` FROM bars WHERE symbol = ? ORDER BY date ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bars []domain.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, *b)
	}
	return bars, rows.Err()
}

func (r *SQLiteRepository) GetBar(ctx context.Context, symbol string, date time.Time) (*domain.Bar, error) {
	query := `SELECT ` + barColumns + ` FROM bars WHERE symbol = ? AND date = ?`

	b, err := scanBar(r.db.QueryRowContext(ctx, query, symbol, date.Format(dateFormat)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bar: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) UpdateBar(ctx context.Context, id string, v domain.Values) (*domain.Bar, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	query := `UPDATE bars SET open = ?, high = ?, low = ?, close = ?, volume = ?,
		revision = revision + 1,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?
		RETURNING ` + barColumns

	b, err := scanBar(r.db.QueryRowContext(ctx, query, v.Open, v.High, v.Low, v.Close, v.Volume, rowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update bar: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) DeleteBar(ctx context.Context, symbol string, date time.Time) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bars WHERE symbol = ? AND date = ?`,
		symbol, date.Format(dateFormat))
	if err != nil {
		return fmt.Errorf("delete bar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) (*domain.Bar, error) {
	rowID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	b, err := scanBar(r.db.QueryRowContext(ctx, `DELETE FROM bars WHERE id = ? RETURNING `+barColumns, rowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete bar: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBar(s scanner) (*domain.Bar, error) {
	var b domain.Bar
	var id int64
	var dateStr, createdStr, updatedStr string

	if err := s.Scan(&id, &b.Symbol, &dateStr,
		&b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		&createdStr, &updatedStr,
	); err != nil {
		return nil, err
	}

	b.ID = strconv.FormatInt(id, 10)
	b.Date, _ = time.Parse(dateFormat, dateStr)
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return &b, nil
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, domain.ErrInvalidID
	}
	return n, nil
}
