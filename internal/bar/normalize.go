package bar

import "math"

type NormalizeStats struct {
	Total   int                     `json:"total"`
	Valid   int                     `json:"valid"`
	Dropped int                     `json:"dropped"`
	Errors  []*MalformedRecordError `json:"-"`
}

// Normalize turns the payload's result entries into Bars, preserving order.
// Entries missing any of t, o, h, l, c, v, or carrying negative, non-finite
// or out-of-range values, are dropped and reported in the stats.
func Normalize(p *RawPayload) ([]Bar, NormalizeStats) {
	var stats NormalizeStats
	if p == nil || len(p.Results) == 0 {
		return []Bar{}, stats
	}

	symbol := p.Symbol()
	stats.Total = len(p.Results)
	bars := make([]Bar, 0, len(p.Results))

	for i, r := range p.Results {
		if err := checkRaw(i, r); err != nil {
			stats.Dropped++
			stats.Errors = append(stats.Errors, err)
			continue
		}
		bars = append(bars, Bar{
			Symbol: symbol,
			Date:   DayFromMillis(int64(*r.T)),
			Open:   *r.O,
			High:   *r.H,
			Low:    *r.L,
			Close:  *r.C,
			Volume: int64(*r.V),
		})
	}

	stats.Valid = len(bars)
	return bars, stats
}

// maxInt64Float is 2^63, the first float64 that does not fit in an int64.
const maxInt64Float = 1 << 63

func checkRaw(i int, r RawBar) *MalformedRecordError {
	fields := []struct {
		name    string
		v       *float64
		integer bool
	}{
		{"t", r.T, true}, {"o", r.O, false}, {"h", r.H, false}, {"l", r.L, false}, {"c", r.C, false}, {"v", r.V, true},
	}
	for _, f := range fields {
		switch {
		case f.v == nil:
			return &MalformedRecordError{Index: i, Field: f.name, Reason: "is missing"}
		case math.IsNaN(*f.v) || math.IsInf(*f.v, 0):
			return &MalformedRecordError{Index: i, Field: f.name, Reason: "is not finite"}
		case *f.v < 0:
			return &MalformedRecordError{Index: i, Field: f.name, Reason: "is negative"}
		case f.integer && *f.v >= maxInt64Float:
			return &MalformedRecordError{Index: i, Field: f.name, Reason: "is out of range"}
		}
	}
	return nil
}
