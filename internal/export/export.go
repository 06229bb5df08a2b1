// Package export writes stored bars to Parquet files for offline analysis.
package export

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

// Record is the on-disk schema of one daily bar.
type Record struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, 00:00 UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// Source is the read side of the bar store.
type Source interface {
	ListSymbols(ctx context.Context) ([]string, error)
	ListBars(ctx context.Context, symbol string) ([]bar.Bar, error)
}

// File describes one written Parquet file.
type File struct {
	Path    string `json:"path"`
	Symbol  string `json:"symbol"`
	Year    int    `json:"year"`
	Records int    `json:"records"`
}

// Path returns the file holding symbol's bars for year:
//
//	<dir>/<SYMBOL>/<YYYY>.parquet
func Path(dir, symbol string, year int) string {
	return filepath.Join(dir, bar.NormalizeSymbol(symbol), strconv.Itoa(year)+".parquet")
}

// Export writes every bar of the given symbols, or of every stored symbol
// when symbols is empty. Existing files are replaced; the store is the
// source of truth.
func Export(ctx context.Context, src Source, dir string, symbols []string) ([]File, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = src.ListSymbols(ctx); err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
	}

	var files []File
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		symbol = bar.NormalizeSymbol(symbol)

		bars, err := src.ListBars(ctx, symbol)
		if err != nil {
			return files, fmt.Errorf("list bars %s: %w", symbol, err)
		}
		written, err := writeSymbol(dir, symbol, bars)
		if err != nil {
			return files, err
		}
		files = append(files, written...)
	}
	return files, nil
}

func writeSymbol(dir, symbol string, bars []bar.Bar) ([]File, error) {
	byYear := make(map[int][]Record)
	for _, b := range bars {
		y := b.Date.UTC().Year()
		byYear[y] = append(byYear[y], toRecord(b))
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	slices.Sort(years)

	files := make([]File, 0, len(years))
	for _, y := range years {
		records := byYear[y]
		slices.SortFunc(records, func(a, b Record) int { return cmp.Compare(a.Timestamp, b.Timestamp) })

		path := Path(dir, symbol, y)
		if err := writeFile(path, records); err != nil {
			return files, fmt.Errorf("write %s/%d: %w", symbol, y, err)
		}
		slog.Info("exported bars", "symbol", symbol, "year", y, "records", len(records), "path", path)
		files = append(files, File{Path: path, Symbol: symbol, Year: y, Records: len(records)})
	}
	return files, nil
}

// Read loads the bars stored in a Parquet file written by Export.
func Read(path string) ([]bar.Bar, error) {
	records, err := parquet.ReadFile[Record](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	bars := make([]bar.Bar, len(records))
	for i, r := range records {
		bars[i] = bar.Bar{
			Symbol: r.Symbol,
			Date:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

func toRecord(b bar.Bar) Record {
	return Record{
		Symbol:    b.Symbol,
		Timestamp: bar.Day(b.Date).UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func writeFile(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
