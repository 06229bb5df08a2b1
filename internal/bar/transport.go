package bar

import (
	"math"
	"strings"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/apperror"
)

type SeriesRequest struct {
	Symbol string
	Limit  int
	Format string // "json" or "csv"
}

func (r SeriesRequest) Validate() *apperror.AppError {
	if r.Symbol == "" {
		return apperror.New(apperror.BadRequest, "symbol is required")
	}
	if r.Limit < 0 {
		return apperror.New(apperror.BadRequest, "limit must not be negative")
	}
	if r.Format != "" && r.Format != "json" && r.Format != "csv" {
		return apperror.New(apperror.BadRequest, "format must be json or csv")
	}
	return nil
}

type SeriesPoint struct {
	Bar
	MA50 *float64 `json:"ma50"`
}

type SeriesResponse struct {
	Symbol string        `json:"symbol"`
	Points []SeriesPoint `json:"points"`
}

// KeyRequest addresses one record by its identity key.
type KeyRequest struct {
	Symbol string
	Date   time.Time
}

func (r KeyRequest) Validate() *apperror.AppError {
	if r.Symbol == "" {
		return apperror.New(apperror.BadRequest, "symbol is required")
	}
	if r.Date.IsZero() {
		return apperror.New(apperror.BadRequest, "date is required")
	}
	return nil
}

// ValuesInput is the body of a create or update. Every field must be present.
type ValuesInput struct {
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *int64   `json:"volume"`
}

func (in ValuesInput) Values() (Values, *apperror.AppError) {
	prices := []struct {
		name string
		v    *float64
	}{
		{"open", in.Open}, {"high", in.High}, {"low", in.Low}, {"close", in.Close},
	}
	for _, p := range prices {
		if p.v == nil {
			return Values{}, apperror.New(apperror.BadRequest, p.name+" is required")
		}
		if math.IsNaN(*p.v) || math.IsInf(*p.v, 0) || *p.v < 0 {
			return Values{}, apperror.New(apperror.BadRequest, p.name+" must be a non-negative number")
		}
	}
	if in.Volume == nil {
		return Values{}, apperror.New(apperror.BadRequest, "volume is required")
	}
	if *in.Volume < 0 {
		return Values{}, apperror.New(apperror.BadRequest, "volume must not be negative")
	}
	return Values{Open: *in.Open, High: *in.High, Low: *in.Low, Close: *in.Close, Volume: *in.Volume}, nil
}

type SaveRequest struct {
	Symbol string
	Date   time.Time
	Values Values
}

func (r SaveRequest) Validate() *apperror.AppError {
	return KeyRequest{Symbol: r.Symbol, Date: r.Date}.Validate()
}

type UpdateRequest struct {
	ID     string
	Values Values
}

func (r UpdateRequest) Validate() *apperror.AppError {
	return IDRequest{ID: r.ID}.Validate()
}

type IDRequest struct {
	ID string
}

func (r IDRequest) Validate() *apperror.AppError {
	if strings.TrimSpace(r.ID) == "" {
		return apperror.New(apperror.BadRequest, "record id is required")
	}
	return nil
}
