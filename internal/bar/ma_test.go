package bar

import (
	"math"
	"testing"
	"time"
)

func series(closes ...float64) []Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Symbol: "AAPL", Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4}, 2)
	if err != nil || got != 3.5 {
		t.Errorf("expected 3.5, got %v (%v)", got, err)
	}
	if _, err := SMA([]float64{1}, 2); err == nil {
		t.Error("expected error for short input")
	}
	if _, err := SMA([]float64{1}, 0); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestMovingAverage(t *testing.T) {
	ma := MovingAverage(series(1, 2, 3, 4, 5), 3)

	if ma[0] != nil || ma[1] != nil {
		t.Error("expected nil before window fills")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		got := ma[i+2]
		if got == nil || math.Abs(*got-w) > 1e-9 {
			t.Errorf("ma[%d]: expected %v, got %v", i+2, w, got)
		}
	}
}

func TestMovingAverage_Fifty(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	ma := MovingAverage(series(closes...), MA50Window)

	if ma[48] != nil {
		t.Error("expected nil at index 48")
	}
	if ma[49] == nil || *ma[49] != 25.5 {
		t.Errorf("expected 25.5 at index 49, got %v", ma[49])
	}
	if ma[59] == nil || *ma[59] != 35.5 {
		t.Errorf("expected 35.5 at index 59, got %v", ma[59])
	}
}
