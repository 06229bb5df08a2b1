package run

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, r *Run) error
	Update(ctx context.Context, r *Run) error
	Get(ctx context.Context, id int64) (*Run, error)
	List(ctx context.Context, status Status, limit int) ([]Run, error)
	FindActive(ctx context.Context, runDate time.Time) (*Run, error)
	ClaimPending(ctx context.Context) (*Run, error)
	Touch(ctx context.Context, id int64) error
	RecoverStale(ctx context.Context, before time.Time) (int64, error)
	TakeOver(ctx context.Context, id int64, before time.Time) (bool, error)
	SaveResults(ctx context.Context, runID int64, results []SymbolResult) error
}
