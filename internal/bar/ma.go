package bar

import "errors"

const MA50Window = 50

// SMA is the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// MovingAverage returns, for each bar, the SMA of close over the window ending
// at that bar. Entries before the window fills are nil. bars must be sorted by
// date ascending.
func MovingAverage(bars []Bar, window int) []*float64 {
	out := make([]*float64, len(bars))
	if window <= 0 {
		return out
	}

	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= window {
			sum -= bars[i-window].Close
		}
		if i >= window-1 {
			avg := sum / float64(window)
			out[i] = &avg
		}
	}
	return out
}

func closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
