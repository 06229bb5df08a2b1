package bar

import (
	"strings"
	"time"
)

const DateFormat = "2006-01-02"

// Bar is one daily OHLCV record for a symbol. (Symbol, Date) identifies it in
// every store.
type Bar struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Values are the fields an upsert overwrites.
type Values struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (b Bar) Values() Values {
	return Values{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}

func (b *Bar) SetValues(v Values) {
	b.Open, b.High, b.Low, b.Close, b.Volume = v.Open, v.High, v.Low, v.Close, v.Volume
}

// UpsertResult reports how a batch landed in the store. Matched counts
// existing records even when their values were already identical.
type UpsertResult struct {
	Matched  int64 `json:"matched"`
	Inserted int64 `json:"inserted"`
	Modified int64 `json:"modified"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// DayFromMillis converts an epoch-milliseconds timestamp to its UTC day.
func DayFromMillis(ms int64) time.Time {
	return Day(time.UnixMilli(ms))
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
