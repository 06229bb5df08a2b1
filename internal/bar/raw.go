package bar

import (
	"encoding/json"
	"fmt"
)

// RawBar is one entry of an aggregates response. Every field is optional on
// the wire, so absence is kept distinguishable from zero.
type RawBar struct {
	T  *float64 `json:"t"`
	O  *float64 `json:"o"`
	H  *float64 `json:"h"`
	L  *float64 `json:"l"`
	C  *float64 `json:"c"`
	V  *float64 `json:"v"`
	VW *float64 `json:"vw,omitempty"`
	N  *int64   `json:"n,omitempty"`
}

// RawPayload is a decoded aggregates response together with the exact bytes
// it was decoded from.
type RawPayload struct {
	Ticker       string   `json:"ticker"`
	Status       string   `json:"status,omitempty"`
	ResultsCount int      `json:"resultsCount,omitempty"`
	Results      []RawBar `json:"results"`
	Error        string   `json:"error,omitempty"`

	// Requested is the symbol the caller asked for; used when Ticker is blank.
	Requested string `json:"-"`
	// Body holds the response bytes verbatim. It is what gets archived.
	Body []byte `json:"-"`
}

// Symbol returns the upper-cased ticker, falling back to the requested symbol.
func (p *RawPayload) Symbol() string {
	if s := NormalizeSymbol(p.Ticker); s != "" {
		return s
	}
	return NormalizeSymbol(p.Requested)
}

// ParsePayload decodes body, keeping body itself on the result.
func ParsePayload(requested string, body []byte) (*RawPayload, error) {
	p := &RawPayload{}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("decode aggregates payload: %w", err)
	}
	p.Requested = requested
	p.Body = body
	return p, nil
}
