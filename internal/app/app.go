// Package app builds the store, archive, ledger and pipeline clients from a
// config.Config. Nothing here is process-global: callers own what they open.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/archive"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/config"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/pipeline"
	platmongo "github.com/Tudornitu1/stock-tracker-gcs/internal/platform/mongo"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/platform/sqlite"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/polygon"
	barrepo "github.com/Tudornitu1/stock-tracker-gcs/internal/repository/bar"
	runrepo "github.com/Tudornitu1/stock-tracker-gcs/internal/repository/run"
)

// ErrMissingAPIKey is returned when a run is built without POLYGON_API_KEY.
var ErrMissingAPIKey = errors.New("POLYGON_API_KEY is not set")

// Store is an open bar repository.
type Store struct {
	bar.Repository
	Backend string
	close   func() error
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore connects to the configured backend. A Mongo deployment that is
// unreachable is not an error here; loads against it fail per symbol.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &Store{Repository: barrepo.NewSQLiteRepository(db.DB), Backend: cfg.Backend, close: db.Close}, nil

	case config.StoreMongo:
		client, err := platmongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		repo := barrepo.NewMongoRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			slog.Warn("ensure mongo indexes", "error", err)
		}
		return &Store{
			Repository: repo,
			Backend:    cfg.Backend,
			close:      func() error { return platmongo.Disconnect(client) },
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// Ledger is the sqlite run ledger.
type Ledger struct {
	*runrepo.Repository
	db *sqlite.DB
}

func OpenLedger(path string) (*Ledger, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{Repository: runrepo.NewRepository(db.DB), db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// OpenSink returns the configured archive sink, or nil for "none". close is
// never nil.
func OpenSink(ctx context.Context, cfg config.ArchiveConfig) (sink archive.Sink, closeFn func() error, err error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.ArchiveNone:
		return nil, noop, nil

	case config.ArchiveLocal:
		s, err := archive.NewLocalSink(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case config.ArchiveGCS:
		var opts []option.ClientOption
		if cfg.Credentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
		}
		s, err := archive.NewGCSSink(ctx, cfg.Bucket, opts...)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown archive backend %q", cfg.Backend)
}

func NewFetcher(cfg config.PolygonConfig) (*polygon.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []polygon.Option{polygon.WithLookbackDays(cfg.LookbackDays)}
	if cfg.BaseURL != "" {
		opts = append(opts, polygon.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Limit > 0 {
		opts = append(opts, polygon.WithLimit(cfg.Limit))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, polygon.WithTimeout(cfg.Timeout))
	}
	return polygon.New(cfg.APIKey, opts...), nil
}

// RunnerBuilder opens fresh clients for every run and releases them when
// the run ends. onLoad may be nil.
func RunnerBuilder(cfg *config.Config, onLoad func(symbol string)) pipeline.Builder {
	return func(ctx context.Context) (*pipeline.Runner, func(), error) {
		fetcher, err := NewFetcher(cfg.Polygon)
		if err != nil {
			return nil, nil, err
		}

		store, err := OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, nil, err
		}

		sink, closeSink, err := OpenSink(ctx, cfg.Archive)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}

		release := func() {
			if err := closeSink(); err != nil {
				slog.Warn("close archive sink", "error", err)
			}
			if err := store.Close(); err != nil {
				slog.Warn("close store", "error", err)
			}
		}

		opts := []pipeline.Option{
			pipeline.WithSink(sink),
			pipeline.WithDelay(cfg.Pipeline.SymbolDelay),
		}
		if onLoad != nil {
			opts = append(opts, pipeline.WithLoadHook(onLoad))
		}
		return pipeline.NewRunner(fetcher, store, cfg.Pipeline.Symbols, opts...), release, nil
	}
}
