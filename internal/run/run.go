package run

import (
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	// HeartbeatInterval is how often a process refreshes the run it owns.
	HeartbeatInterval = time.Minute
	// StaleAfter is how long a running run may go without a heartbeat before
	// another process may take it over.
	StaleAfter = 5 * HeartbeatInterval
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerCLI      Trigger = "cli"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerCLI, TriggerSchedule, TriggerManual:
		return true
	}
	return false
}

// Run is one pipeline execution over the configured symbols. Symbol-level
// failures never fail a run; StatusFailed means the run could not start.
type Run struct {
	ID        int64          `json:"id"`
	Trigger   Trigger        `json:"trigger"`
	RunDate   time.Time      `json:"runDate"`
	Status    Status         `json:"status"`
	Symbols   int            `json:"symbols"`
	Loaded    int            `json:"loaded"`
	Skipped   int            `json:"skipped"`
	Error     string         `json:"error,omitempty"`
	Results   []SymbolResult `json:"results,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SymbolStatus is the terminal state of one symbol within a run.
type SymbolStatus string

const (
	SymbolLoaded      SymbolStatus = "loaded"
	SymbolEmpty       SymbolStatus = "empty"
	SymbolFetchFailed SymbolStatus = "fetch_failed"
	SymbolNoValidBars SymbolStatus = "no_valid_bars"
	SymbolStoreFailed SymbolStatus = "store_failed"
)

type SymbolResult struct {
	Symbol     string           `json:"symbol"`
	Status     SymbolStatus     `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Dropped    int              `json:"dropped"`
	Archived   bool             `json:"archived"`
	ArchiveKey string           `json:"archiveKey,omitempty"`
	Upsert     bar.UpsertResult `json:"upsert"`
}

// Tally counts loaded and skipped symbols in results.
func Tally(results []SymbolResult) (loaded, skipped int) {
	for _, r := range results {
		if r.Status == SymbolLoaded {
			loaded++
		} else {
			skipped++
		}
	}
	return loaded, skipped
}
