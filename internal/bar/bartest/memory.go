// Package bartest provides an in-memory bar.Repository for tests.
package bartest

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

type key struct {
	symbol string
	date   time.Time
}

// Memory mirrors the upsert semantics of the real stores. Set the Err fields
// to make the matching operation fail.
type Memory struct {
	mu     sync.Mutex
	rows   map[key]*bar.Bar
	nextID int64

	UpsertErr error
	ReadErr   error
	PingErr   error

	Upserts int
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[key]*bar.Bar)}
}

func (m *Memory) UpsertBars(_ context.Context, bars []bar.Bar) (bar.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res bar.UpsertResult
	if len(bars) == 0 {
		return res, nil
	}
	if m.UpsertErr != nil {
		return res, m.UpsertErr
	}
	m.Upserts++

	for _, b := range bars {
		k := key{b.Symbol, b.Date}
		if existing, ok := m.rows[k]; ok {
			res.Matched++
			if existing.Values() != b.Values() {
				existing.SetValues(b.Values())
				existing.UpdatedAt = time.Now().UTC()
				res.Modified++
			}
			continue
		}
		m.nextID++
		cp := b
		cp.ID = strconv.FormatInt(m.nextID, 10)
		cp.CreatedAt = time.Now().UTC()
		cp.UpdatedAt = cp.CreatedAt
		m.rows[k] = &cp
		res.Inserted++
	}
	return res, nil
}

func (m *Memory) ListBars(_ context.Context, symbol string) ([]bar.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}

	var out []bar.Bar
	for k, b := range m.rows {
		if k.symbol == symbol {
			out = append(out, *b)
		}
	}
	slices.SortFunc(out, func(a, b bar.Bar) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (m *Memory) GetBar(_ context.Context, symbol string, date time.Time) (*bar.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}

	b, ok := m.rows[key{symbol, date}]
	if !ok {
		return nil, bar.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) UpdateBar(_ context.Context, id string, v bar.Values) (*bar.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.byID(id)
	if err != nil {
		return nil, err
	}
	b.SetValues(v)
	b.UpdatedAt = time.Now().UTC()
	cp := *b
	return &cp, nil
}

func (m *Memory) DeleteBar(_ context.Context, symbol string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{symbol, date}
	if _, ok := m.rows[k]; !ok {
		return bar.ErrNotFound
	}
	delete(m.rows, k)
	return nil
}

func (m *Memory) DeleteByID(_ context.Context, id string) (*bar.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.byID(id)
	if err != nil {
		return nil, err
	}
	delete(m.rows, key{b.Symbol, b.Date})
	return b, nil
}

func (m *Memory) ListSymbols(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for k := range m.rows {
		if !slices.Contains(out, k.symbol) {
			out = append(out, k.symbol)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (m *Memory) Ping(_ context.Context) error {
	return m.PingErr
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *Memory) byID(id string) (*bar.Bar, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, bar.ErrInvalidID
	}
	for _, b := range m.rows {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, bar.ErrNotFound
}
