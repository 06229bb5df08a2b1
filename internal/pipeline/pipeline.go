// Package pipeline drives the daily fetch, archive and load over a symbol
// universe.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/archive"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

// DefaultDelay keeps a run within the upstream free tier of 5 calls/min.
const DefaultDelay = 15 * time.Second

// ErrNothingToLoad means normalization left no valid bars for a symbol.
var ErrNothingToLoad = errors.New("no valid bars to load")

type Fetcher interface {
	Fetch(ctx context.Context, symbol string) bar.Outcome
}

type Loader interface {
	UpsertBars(ctx context.Context, bars []bar.Bar) (bar.UpsertResult, error)
	Ping(ctx context.Context) error
}

// Runner processes symbols strictly one after another.
type Runner struct {
	fetcher Fetcher
	loader  Loader
	sink    archive.Sink
	symbols []string
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	onLoad  func(symbol string)
}

type Option func(*Runner)

// WithSink archives each fetched payload before it is loaded. A nil sink
// disables archiving.
func WithSink(s archive.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

func WithDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLoadHook is called with the symbol after each successful load.
func WithLoadHook(fn func(symbol string)) Option {
	return func(r *Runner) { r.onLoad = fn }
}

func NewRunner(fetcher Fetcher, loader Loader, symbols []string, opts ...Option) *Runner {
	r := &Runner{
		fetcher: fetcher,
		loader:  loader,
		symbols: symbols,
		delay:   DefaultDelay,
		sleep:   sleep,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report is what one run did, symbol by symbol.
type Report struct {
	RunDate  time.Time          `json:"runDate"`
	Results  []run.SymbolResult `json:"results"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished"`
}

func (r *Report) Loaded() int {
	loaded, _ := run.Tally(r.Results)
	return loaded
}

func (r *Report) Skipped() int {
	_, skipped := run.Tally(r.Results)
	return skipped
}

// Run processes every configured symbol for runDate. Symbol failures are
// recorded in the report and never stop the run. The returned error is
// non-nil only when ctx ends the run early; the report then holds the
// symbols processed so far.
func (r *Runner) Run(ctx context.Context, runDate time.Time) (*Report, error) {
	runDate = bar.Day(runDate)
	report := &Report{RunDate: runDate, Started: r.now()}
	defer func() { report.Finished = r.now() }()

	if err := r.loader.Ping(ctx); err != nil {
		slog.Warn("store ping failed, loads may fail", "error", err)
	}
	slog.Info("run started", "runDate", runDate.Format(bar.DateFormat), "symbols", len(r.symbols))

	for i, symbol := range r.symbols {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Results = append(report.Results, r.process(ctx, symbol, runDate))

		if i < len(r.symbols)-1 && r.delay > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				return report, err
			}
		}
	}

	slog.Info("run finished", "runDate", runDate.Format(bar.DateFormat),
		"loaded", report.Loaded(), "skipped", report.Skipped())
	return report, nil
}

func (r *Runner) process(ctx context.Context, symbol string, runDate time.Time) run.SymbolResult {
	res := run.SymbolResult{Symbol: bar.NormalizeSymbol(symbol)}

	switch o := r.fetcher.Fetch(ctx, symbol).(type) {
	case *bar.Fetched:
		r.ingest(ctx, o.Payload, runDate, &res)
	case *bar.Empty:
		res.Status = run.SymbolEmpty
		res.Reason = o.Error()
		slog.Warn("no data, skipping", "symbol", res.Symbol)
	case *bar.FetchFailed:
		res.Status = run.SymbolFetchFailed
		res.Reason = o.Error()
		slog.Error("fetch failed, skipping", "symbol", res.Symbol, "error", o.Reason)
	default:
		res.Status = run.SymbolFetchFailed
		res.Reason = fmt.Sprintf("unexpected fetch outcome %T", o)
		slog.Error("fetch failed, skipping", "symbol", res.Symbol, "reason", res.Reason)
	}
	return res
}

func (r *Runner) ingest(ctx context.Context, p *bar.RawPayload, runDate time.Time, res *run.SymbolResult) {
	if r.sink != nil {
		key := archive.RawKey(res.Symbol, runDate)
		if err := r.sink.Put(ctx, key, archive.ContentTypeJSON, payloadBody(p)); err != nil {
			slog.Error("archive failed, loading anyway", "symbol", res.Symbol, "key", key, "error", err)
		} else {
			res.Archived = true
			res.ArchiveKey = key
			slog.Info("archived raw payload", "symbol", res.Symbol, "key", key)
		}
	}

	bars, stats := bar.Normalize(p)
	res.Dropped = stats.Dropped
	for _, e := range stats.Errors {
		slog.Debug("dropped malformed result", "symbol", res.Symbol, "error", e)
	}
	if stats.Dropped > 0 {
		slog.Warn("dropped malformed results", "symbol", res.Symbol, "dropped", stats.Dropped, "total", stats.Total)
	}

	upsert, err := r.load(ctx, res.Symbol, bars)
	switch {
	case errors.Is(err, ErrNothingToLoad):
		res.Status = run.SymbolNoValidBars
		res.Reason = err.Error()
		slog.Warn("nothing to load, skipping", "symbol", res.Symbol)
	case err != nil:
		res.Status = run.SymbolStoreFailed
		res.Reason = err.Error()
		slog.Error("load failed", "symbol", res.Symbol, "error", err)
	default:
		res.Status = run.SymbolLoaded
		res.Upsert = upsert
		slog.Info("loaded bars", "symbol", res.Symbol, "bars", len(bars),
			"matched", upsert.Matched, "inserted", upsert.Inserted, "modified", upsert.Modified)
		if r.onLoad != nil {
			r.onLoad(res.Symbol)
		}
	}
}

func (r *Runner) load(ctx context.Context, symbol string, bars []bar.Bar) (bar.UpsertResult, error) {
	if len(bars) == 0 {
		return bar.UpsertResult{}, ErrNothingToLoad
	}
	res, err := r.loader.UpsertBars(ctx, bars)
	if err != nil {
		return res, &bar.StoreWriteError{Symbol: symbol, Err: err}
	}
	return res, nil
}

// payloadBody returns the bytes to archive. Payloads built in memory rather
// than decoded from a response are re-encoded.
func payloadBody(p *bar.RawPayload) []byte {
	if len(p.Body) > 0 {
		return p.Body
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
