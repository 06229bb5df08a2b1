package bar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/apperror"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/cache"
)

// Service backs the dashboard: reads go through a per-symbol cache and every
// write invalidates the symbol it touched.
type Service struct {
	repo    Repository
	symbols []string
	series  *cache.TTL[string, []Bar]
}

func NewService(repo Repository, symbols []string, cacheTTL time.Duration) *Service {
	return &Service{
		repo:    repo,
		symbols: symbols,
		series:  cache.New[string, []Bar](cacheTTL),
	}
}

// Symbols returns the configured universe.
func (s *Service) Symbols() []string {
	return slices.Clone(s.symbols)
}

// Invalidate drops the cached series for symbol. The pipeline calls it after
// each load in the same process.
func (s *Service) Invalidate(symbol string) {
	s.series.Invalidate(NormalizeSymbol(symbol))
}

func (s *Service) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return apperror.Wrap(apperror.Unavailable, "store unavailable", err)
	}
	return nil
}

func (s *Service) Series(ctx context.Context, req SeriesRequest) (*SeriesResponse, error) {
	req.Symbol = NormalizeSymbol(req.Symbol)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	bars, err := s.load(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	ma := MovingAverage(bars, MA50Window)
	points := make([]SeriesPoint, len(bars))
	for i, b := range bars {
		points[i] = SeriesPoint{Bar: b, MA50: ma[i]}
	}
	if req.Limit > 0 && len(points) > req.Limit {
		points = points[len(points)-req.Limit:]
	}

	return &SeriesResponse{Symbol: req.Symbol, Points: points}, nil
}

func (s *Service) Summary(ctx context.Context, symbol string) (*Summary, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperror.New(apperror.BadRequest, "symbol is required")
	}

	bars, err := s.load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sum := Summarize(symbol, bars)
	if sum == nil {
		return nil, apperror.New(apperror.NotFound, fmt.Sprintf("no data for %s", symbol))
	}
	return sum, nil
}

func (s *Service) Find(ctx context.Context, req KeyRequest) (*Bar, error) {
	req.Symbol = NormalizeSymbol(req.Symbol)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := s.repo.GetBar(ctx, req.Symbol, Day(req.Date))
	if err != nil {
		return nil, storeError("find bar", err)
	}
	return b, nil
}

// Save creates or overwrites the record at (symbol, date).
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Bar, error) {
	req.Symbol = NormalizeSymbol(req.Symbol)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkSymbol(req.Symbol); err != nil {
		return nil, err
	}

	b := Bar{Symbol: req.Symbol, Date: Day(req.Date)}
	b.SetValues(req.Values)

	res, err := s.repo.UpsertBars(ctx, []Bar{b})
	if err != nil {
		return nil, storeError("save bar", err)
	}
	s.Invalidate(req.Symbol)
	slog.Info("saved bar", "symbol", b.Symbol, "date", b.Date.Format(DateFormat),
		"inserted", res.Inserted, "modified", res.Modified)

	saved, err := s.repo.GetBar(ctx, b.Symbol, b.Date)
	if err != nil {
		return nil, storeError("reload bar", err)
	}
	return saved, nil
}

func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := s.repo.UpdateBar(ctx, req.ID, req.Values)
	if err != nil {
		return nil, storeError("update bar", err)
	}
	s.Invalidate(b.Symbol)
	slog.Info("updated bar", "id", b.ID, "symbol", b.Symbol, "date", b.Date.Format(DateFormat))
	return b, nil
}

func (s *Service) Delete(ctx context.Context, req KeyRequest) error {
	req.Symbol = NormalizeSymbol(req.Symbol)
	if err := req.Validate(); err != nil {
		return err
	}

	if err := s.repo.DeleteBar(ctx, req.Symbol, Day(req.Date)); err != nil {
		return storeError("delete bar", err)
	}
	s.Invalidate(req.Symbol)
	slog.Info("deleted bar", "symbol", req.Symbol, "date", Day(req.Date).Format(DateFormat))
	return nil
}

func (s *Service) DeleteByID(ctx context.Context, req IDRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	b, err := s.repo.DeleteByID(ctx, req.ID)
	if err != nil {
		return storeError("delete bar", err)
	}
	s.Invalidate(b.Symbol)
	slog.Info("deleted bar", "id", req.ID, "symbol", b.Symbol, "date", b.Date.Format(DateFormat))
	return nil
}

func (s *Service) load(ctx context.Context, symbol string) ([]Bar, error) {
	bars, err := s.series.Get(ctx, symbol, func(ctx context.Context) ([]Bar, error) {
		return s.repo.ListBars(ctx, symbol)
	})
	if err != nil {
		return nil, storeError("list bars", err)
	}
	return bars, nil
}

func (s *Service) checkSymbol(symbol string) error {
	if len(s.symbols) == 0 || slices.Contains(s.symbols, symbol) {
		return nil
	}
	return apperror.New(apperror.BadRequest, fmt.Sprintf("unknown symbol %s", symbol))
}

func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperror.New(apperror.NotFound, "record not found")
	case errors.Is(err, ErrInvalidID):
		return apperror.New(apperror.BadRequest, "invalid record id")
	}
	slog.Warn("store operation failed", "op", op, "error", err)
	return apperror.Wrap(apperror.Unavailable, "store unavailable", fmt.Errorf("%s: %w", op, err))
}
