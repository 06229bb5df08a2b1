package bar

import (
	"math"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	p := &RawPayload{
		Ticker: "aapl",
		Results: []RawBar{
			{T: f(1699920000000), O: f(187.7), H: f(188.11), L: f(186.3), C: f(187.44), V: f(60108400)},
			{T: f(1700006400000), O: f(187.85), H: f(188.61), L: f(187.56), C: f(188.01), V: f(5.05e7)},
		},
	}

	bars, stats := Normalize(p)
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if stats.Total != 2 || stats.Valid != 2 || stats.Dropped != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	b := bars[0]
	if b.Symbol != "AAPL" {
		t.Errorf("expected AAPL, got %s", b.Symbol)
	}
	want := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	if !b.Date.Equal(want) {
		t.Errorf("expected %v, got %v", want, b.Date)
	}
	if b.Open != 187.7 || b.High != 188.11 || b.Low != 186.3 || b.Close != 187.44 || b.Volume != 60108400 {
		t.Errorf("unexpected values: %+v", b)
	}
	if !bars[1].Date.After(bars[0].Date) {
		t.Error("expected input order preserved")
	}
}

func TestNormalize_TruncatesIntradayTimestampToUTCDay(t *testing.T) {
	// 2023-11-14T23:30:00Z
	p := &RawPayload{Ticker: "MSFT", Results: []RawBar{
		{T: f(1700004600000), O: f(1), H: f(1), L: f(1), C: f(1), V: f(1.9)},
	}}

	bars, _ := Normalize(p)
	if got := bars[0].Date.Format(DateFormat); got != "2023-11-14" {
		t.Errorf("expected 2023-11-14, got %s", got)
	}
	if bars[0].Volume != 1 {
		t.Errorf("expected volume truncated to 1, got %d", bars[0].Volume)
	}
}

func TestNormalize_DropsMalformedEntries(t *testing.T) {
	p := &RawPayload{Ticker: "TSLA", Results: []RawBar{
		{T: f(1699920000000), O: f(1), H: f(2), L: f(0.5), C: f(1.5)},
		{T: f(1699920000000), O: f(-1), H: f(2), L: f(0.5), C: f(1.5), V: f(10)},
		{T: f(1699920000000), O: f(math.NaN()), H: f(2), L: f(0.5), C: f(1.5), V: f(10)},
		{O: f(1), H: f(2), L: f(0.5), C: f(1.5), V: f(10)},
		{T: f(1700006400000), O: f(1), H: f(2), L: f(0.5), C: f(1.5), V: f(10)},
		{T: f(1700000000000), O: f(1), H: f(1), L: f(1), C: f(1), V: f(1e20)},
		{T: f(1e19), O: f(1), H: f(1), L: f(1), C: f(1), V: f(1)},
	}}

	bars, stats := Normalize(p)
	if len(bars) != 1 {
		t.Fatalf("expected 1 valid bar, got %d", len(bars))
	}
	if stats.Dropped != 6 || len(stats.Errors) != 6 {
		t.Fatalf("expected 6 dropped, got %+v", stats)
	}
	if stats.Errors[0].Field != "v" || stats.Errors[1].Reason != "is negative" {
		t.Errorf("unexpected errors: %v, %v", stats.Errors[0], stats.Errors[1])
	}
	if stats.Errors[3].Field != "t" || stats.Errors[3].Index != 3 {
		t.Errorf("unexpected error: %v", stats.Errors[3])
	}
	if e := stats.Errors[4]; e.Field != "v" || e.Reason != "is out of range" || e.Index != 5 {
		t.Errorf("expected out of range volume, got %v", e)
	}
	if e := stats.Errors[5]; e.Field != "t" || e.Reason != "is out of range" || e.Index != 6 {
		t.Errorf("expected out of range timestamp, got %v", e)
	}
	if bars[0].Volume < 0 {
		t.Errorf("volume must not be negative, got %d", bars[0].Volume)
	}
}

func TestNormalize_Empty(t *testing.T) {
	bars, stats := Normalize(&RawPayload{Ticker: "NVDA"})
	if bars == nil || len(bars) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", bars)
	}
	if stats.Total != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}

	if bars, _ := Normalize(nil); len(bars) != 0 {
		t.Errorf("expected nil payload to yield nothing")
	}
}

func TestNormalize_FallsBackToRequestedSymbol(t *testing.T) {
	p, err := ParsePayload("googl", []byte(`{"results":[{"t":1699920000000,"o":1,"h":1,"l":1,"c":1,"v":1}]}`))
	if err != nil {
		t.Fatal(err)
	}
	bars, _ := Normalize(p)
	if bars[0].Symbol != "GOOGL" {
		t.Errorf("expected GOOGL, got %s", bars[0].Symbol)
	}
}

func TestParsePayload_KeepsBody(t *testing.T) {
	body := []byte(`{"ticker":"AAPL","status":"OK","resultsCount":0,"results":[]}`)
	p, err := ParsePayload("AAPL", body)
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Body) != string(body) {
		t.Errorf("expected body kept verbatim")
	}
	if p.Status != "OK" {
		t.Errorf("expected status OK, got %q", p.Status)
	}

	if _, err := ParsePayload("AAPL", []byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
}
