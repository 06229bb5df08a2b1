package bar

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("bar not found")
	ErrInvalidID = errors.New("invalid record id")
)

// StoreWriteError wraps a failed batch write for one symbol.
type StoreWriteError struct {
	Symbol string
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write %s: %v", e.Symbol, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// MalformedRecordError describes a raw entry that could not become a Bar.
type MalformedRecordError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("result %d: field %q %s", e.Index, e.Field, e.Reason)
}
