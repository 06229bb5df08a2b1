// Package archive stores raw upstream payloads in object storage.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

const ContentTypeJSON = "application/json"

// Sink writes one object per key. Writing an existing key replaces it.
type Sink interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// WriteError wraps a failed Put.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// RawKey is the object key for a symbol's payload on runDate.
func RawKey(symbol string, runDate time.Time) string {
	return fmt.Sprintf("raw_stock_data/ticker=%s/date=%s/data.json",
		bar.NormalizeSymbol(symbol), runDate.Format(bar.DateFormat))
}
