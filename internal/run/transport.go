package run

import (
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/apperror"
)

type GetRunRequest struct {
	ID int64
}

func (r GetRunRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid run id")
	}
	return nil
}

type ListRunsRequest struct {
	Status Status
	Limit  int
}

func (r ListRunsRequest) Validate() *apperror.AppError {
	switch r.Status {
	case "", StatusPending, StatusRunning, StatusCompleted, StatusFailed:
	default:
		return apperror.New(apperror.BadRequest, "status must be pending, running, completed or failed")
	}
	if r.Limit < 0 || r.Limit > 500 {
		return apperror.New(apperror.BadRequest, "limit must be between 0 and 500")
	}
	return nil
}

type EnqueueRequest struct {
	Trigger Trigger
	// RunDate defaults to today (UTC).
	RunDate time.Time
}

func (r EnqueueRequest) Validate() *apperror.AppError {
	if !r.Trigger.Valid() {
		return apperror.New(apperror.BadRequest, "trigger must be cli, schedule or manual")
	}
	return nil
}
