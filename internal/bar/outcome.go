package bar

import "fmt"

// Outcome is the result of fetching one symbol: exactly one of *Fetched,
// *Empty or *FetchFailed.
type Outcome interface {
	SymbolName() string
	outcome()
}

// Fetched carries a payload with at least one result entry.
type Fetched struct {
	Payload *RawPayload
}

// Empty means the upstream answered but had no results for the symbol.
type Empty struct {
	Symbol string
}

// FetchFailed covers transport errors, non-2xx statuses and undecodable bodies.
type FetchFailed struct {
	Symbol string
	Reason error
}

func (f *Fetched) SymbolName() string     { return f.Payload.Symbol() }
func (e *Empty) SymbolName() string       { return e.Symbol }
func (f *FetchFailed) SymbolName() string { return f.Symbol }

func (*Fetched) outcome()     {}
func (*Empty) outcome()       {}
func (*FetchFailed) outcome() {}

func (e *Empty) Error() string {
	return fmt.Sprintf("no results for %s", e.Symbol)
}

func (f *FetchFailed) Error() string {
	return fmt.Sprintf("fetch %s: %v", f.Symbol, f.Reason)
}

func (f *FetchFailed) Unwrap() error { return f.Reason }
