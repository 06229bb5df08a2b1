package bar

import (
	"context"
	"time"
)

// Repository is the store contract shared by the pipeline loader and the
// dashboard. Implementations return ErrNotFound and ErrInvalidID unwrapped
// or wrapped so errors.Is matches them.
type Repository interface {
	// UpsertBars writes the batch in a single conditional operation keyed on
	// (symbol, date). An empty batch performs no store operation.
	UpsertBars(ctx context.Context, bars []Bar) (UpsertResult, error)
	ListBars(ctx context.Context, symbol string) ([]Bar, error)
	GetBar(ctx context.Context, symbol string, date time.Time) (*Bar, error)
	UpdateBar(ctx context.Context, id string, v Values) (*Bar, error)
	DeleteBar(ctx context.Context, symbol string, date time.Time) error
	DeleteByID(ctx context.Context, id string) (*Bar, error)
	ListSymbols(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
