package bar

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary is the headline view of a symbol: its latest record and the change
// against the record before it.
type Summary struct {
	Symbol         string         `json:"symbol"`
	Date           time.Time      `json:"date"`
	Close          float64        `json:"close"`
	Volume         int64          `json:"volume"`
	CloseChange    *float64       `json:"closeChange"`
	CloseChangePct *float64       `json:"closeChangePct"`
	VolumeChange   *int64         `json:"volumeChange"`
	MA50           *float64       `json:"ma50"`
	Records        int            `json:"records"`
	Display        SummaryDisplay `json:"display"`
}

type SummaryDisplay struct {
	Close        string `json:"close"`
	Volume       string `json:"volume"`
	CloseChange  string `json:"closeChange,omitempty"`
	VolumeChange string `json:"volumeChange,omitempty"`
	Span         string `json:"span"`
}

// Summarize builds a Summary from date-ascending bars. It returns nil for an
// empty series.
func Summarize(symbol string, bars []Bar) *Summary {
	if len(bars) == 0 {
		return nil
	}

	last := bars[len(bars)-1]
	s := &Summary{
		Symbol:  symbol,
		Date:    last.Date,
		Close:   last.Close,
		Volume:  last.Volume,
		Records: len(bars),
	}
	if avg, err := SMA(closes(bars), MA50Window); err == nil {
		s.MA50 = &avg
	}

	s.Display = SummaryDisplay{
		Close:  "$" + humanize.FormatFloat("#,###.##", last.Close),
		Volume: humanize.Comma(last.Volume),
		Span:   humanize.RelTime(bars[0].Date, last.Date, "of history", ""),
	}
	if len(bars) == 1 {
		s.Display.Span = "1 record"
		return s
	}

	prev := bars[len(bars)-2]
	dc := last.Close - prev.Close
	dv := last.Volume - prev.Volume
	s.CloseChange = &dc
	s.VolumeChange = &dv
	if prev.Close != 0 {
		pct := dc / prev.Close * 100
		s.CloseChangePct = &pct
	}

	s.Display.CloseChange = humanize.FormatFloat("+#,###.##", dc)
	s.Display.VolumeChange = humanize.Comma(dv)
	if dv > 0 {
		s.Display.VolumeChange = "+" + s.Display.VolumeChange
	}
	if s.CloseChangePct != nil {
		s.Display.CloseChange += fmt.Sprintf(" (%+.2f%%)", *s.CloseChangePct)
	}
	return s
}
