package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar/bartest"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/platform/sqlite"
	runrepo "github.com/Tudornitu1/stock-tracker-gcs/internal/repository/run"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/server"
)

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*httptest.Server, *bartest.Memory) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := bartest.NewMemory()
	barSvc := bar.NewService(store, []string{"AAPL", "MSFT"}, time.Minute)
	runSvc := run.NewService(runrepo.NewRepository(db.DB))

	ts := httptest.NewServer(server.NewHandler(barSvc, runSvc))
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, method, url, body string) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	} else {
		env.Data = raw
	}
	return resp, env
}

func expectStatus(t *testing.T, resp *http.Response, env envelope, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d (%s)", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, env.Message)
	}
}

const aaplValues = `{"open":187.7,"high":188.11,"low":186.3,"close":187.44,"volume":60108400}`

func TestHealth(t *testing.T) {
	ts, store := setup(t)

	resp, env := do(t, http.MethodGet, ts.URL+"/health", "")
	expectStatus(t, resp, env, http.StatusOK)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	store.PingErr = errors.New("connection refused")
	resp, env = do(t, http.MethodGet, ts.URL+"/health", "")
	expectStatus(t, resp, env, http.StatusServiceUnavailable)
}

func TestSymbols(t *testing.T) {
	ts, _ := setup(t)

	resp, env := do(t, http.MethodGet, ts.URL+"/api/v1/symbols", "")
	expectStatus(t, resp, env, http.StatusOK)

	var symbols []string
	_ = json.Unmarshal(env.Data, &symbols)
	if len(symbols) != 2 || symbols[0] != "AAPL" {
		t.Errorf("unexpected symbols %v", symbols)
	}
}

func TestBarLifecycle(t *testing.T) {
	ts, store := setup(t)
	base := ts.URL + "/api/v1/bars/aapl/2023-11-14"

	// Create.
	resp, env := do(t, http.MethodPut, base, aaplValues)
	expectStatus(t, resp, env, http.StatusOK)
	var saved bar.Bar
	_ = json.Unmarshal(env.Data, &saved)
	if saved.Symbol != "AAPL" || saved.Close != 187.44 || saved.ID == "" {
		t.Fatalf("unexpected saved bar %+v", saved)
	}

	// Upsert again with a new close; still one record.
	resp, env = do(t, http.MethodPut, base, `{"open":187.7,"high":188.11,"low":186.3,"close":188,"volume":60108400}`)
	expectStatus(t, resp, env, http.StatusOK)
	if store.Len() != 1 {
		t.Errorf("expected 1 record, got %d", store.Len())
	}

	// Find.
	resp, env = do(t, http.MethodGet, base, "")
	expectStatus(t, resp, env, http.StatusOK)
	var found bar.Bar
	_ = json.Unmarshal(env.Data, &found)
	if found.Close != 188 {
		t.Errorf("expected close 188, got %v", found.Close)
	}

	// Series reflects the write.
	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/bars/AAPL", "")
	expectStatus(t, resp, env, http.StatusOK)
	var series bar.SeriesResponse
	_ = json.Unmarshal(env.Data, &series)
	if len(series.Points) != 1 || series.Points[0].Close != 188 || series.Points[0].MA50 != nil {
		t.Errorf("unexpected series %+v", series)
	}

	// Update by id.
	resp, env = do(t, http.MethodPatch, ts.URL+"/api/v1/records/"+saved.ID,
		`{"open":1,"high":2,"low":0.5,"close":1.5,"volume":10}`)
	expectStatus(t, resp, env, http.StatusOK)
	var updated bar.Bar
	_ = json.Unmarshal(env.Data, &updated)
	if updated.Close != 1.5 || updated.Volume != 10 {
		t.Errorf("unexpected updated bar %+v", updated)
	}

	// Delete by id, then the key is gone.
	resp, env = do(t, http.MethodDelete, ts.URL+"/api/v1/records/"+saved.ID, "")
	expectStatus(t, resp, env, http.StatusNoContent)
	resp, env = do(t, http.MethodGet, base, "")
	expectStatus(t, resp, env, http.StatusNotFound)
	resp, env = do(t, http.MethodDelete, ts.URL+"/api/v1/records/"+saved.ID, "")
	expectStatus(t, resp, env, http.StatusNotFound)
}

func TestDeleteByKey(t *testing.T) {
	ts, store := setup(t)
	base := ts.URL + "/api/v1/bars/MSFT/2024-01-02"

	resp, env := do(t, http.MethodPut, base, aaplValues)
	expectStatus(t, resp, env, http.StatusOK)

	resp, env = do(t, http.MethodDelete, base, "")
	expectStatus(t, resp, env, http.StatusNoContent)
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}

	resp, env = do(t, http.MethodDelete, base, "")
	expectStatus(t, resp, env, http.StatusNotFound)
}

func TestValidation(t *testing.T) {
	ts, _ := setup(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   string
	}{
		{"bad date", http.MethodGet, "/api/v1/bars/AAPL/14-11-2023", "", "invalid date format"},
		{"unknown symbol", http.MethodPut, "/api/v1/bars/ZZZZ/2023-11-14", aaplValues, "unknown symbol"},
		{"missing close", http.MethodPut, "/api/v1/bars/AAPL/2023-11-14", `{"open":1,"high":1,"low":1,"volume":1}`, "close is required"},
		{"negative volume", http.MethodPut, "/api/v1/bars/AAPL/2023-11-14", `{"open":1,"high":1,"low":1,"close":1,"volume":-1}`, "volume must not be negative"},
		{"bad json", http.MethodPut, "/api/v1/bars/AAPL/2023-11-14", `{"open":`, "invalid JSON body"},
		{"bad limit", http.MethodGet, "/api/v1/bars/AAPL?limit=ten", "", "limit must be an integer"},
		{"bad format", http.MethodGet, "/api/v1/bars/AAPL?format=xml", "", "format must be json or csv"},
		{"bad record id", http.MethodDelete, "/api/v1/records/abc", "", "invalid record id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, tt.method, ts.URL+tt.path, tt.body)
			expectStatus(t, resp, env, http.StatusBadRequest)
			if !strings.Contains(env.Message, tt.want) {
				t.Errorf("expected message containing %q, got %q", tt.want, env.Message)
			}
		})
	}
}

func TestSeriesCSVAndSummary(t *testing.T) {
	ts, store := setup(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []bar.Bar
	for i := range 60 {
		bars = append(bars, bar.Bar{
			Symbol: "AAPL", Date: start.AddDate(0, 0, i),
			Open: 100, High: 101, Low: 99, Close: float64(100 + i), Volume: int64(1000 + i),
		})
	}
	if _, err := store.UpsertBars(ctx, bars); err != nil {
		t.Fatal(err)
	}

	resp, env := do(t, http.MethodGet, ts.URL+"/api/v1/bars/AAPL?limit=11", "")
	expectStatus(t, resp, env, http.StatusOK)
	var series bar.SeriesResponse
	_ = json.Unmarshal(env.Data, &series)
	if len(series.Points) != 11 {
		t.Fatalf("expected 11 points, got %d", len(series.Points))
	}
	if series.Points[0].MA50 == nil {
		t.Error("expected ma50 on the tail, computed over the full series")
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/bars/AAPL?format=csv&limit=2", "")
	expectStatus(t, resp, env, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(string(env.Data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "Symbol,Date,Open") || !strings.HasPrefix(lines[2], "AAPL,2024-02-29,") {
		t.Errorf("unexpected csv:\n%s", env.Data)
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/bars/AAPL/summary", "")
	expectStatus(t, resp, env, http.StatusOK)
	var sum bar.Summary
	_ = json.Unmarshal(env.Data, &sum)
	if sum.Close != 159 || sum.CloseChange == nil || *sum.CloseChange != 1 || sum.Records != 60 {
		t.Errorf("unexpected summary %+v", sum)
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/bars/MSFT/summary", "")
	expectStatus(t, resp, env, http.StatusNotFound)
}

func TestStoreOutage(t *testing.T) {
	ts, store := setup(t)
	store.ReadErr = errors.New("connection refused")

	resp, env := do(t, http.MethodGet, ts.URL+"/api/v1/bars/AAPL", "")
	expectStatus(t, resp, env, http.StatusServiceUnavailable)
	if strings.Contains(env.Message, "refused") {
		t.Errorf("store details leaked: %q", env.Message)
	}
}

func TestRuns(t *testing.T) {
	ts, _ := setup(t)

	resp, env := do(t, http.MethodPost, ts.URL+"/api/v1/runs", `{"runDate":"2024-03-05"}`)
	expectStatus(t, resp, env, http.StatusAccepted)
	var created run.Run
	_ = json.Unmarshal(env.Data, &created)
	if created.ID == 0 || created.Trigger != run.TriggerManual || created.Status != run.StatusPending {
		t.Fatalf("unexpected run %+v", created)
	}

	// Same date while pending returns the existing run.
	resp, env = do(t, http.MethodPost, ts.URL+"/api/v1/runs", `{"runDate":"2024-03-05"}`)
	expectStatus(t, resp, env, http.StatusOK)
	var again run.Run
	_ = json.Unmarshal(env.Data, &again)
	if again.ID != created.ID {
		t.Errorf("expected run %d, got %d", created.ID, again.ID)
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/runs/"+jsonInt(created.ID), "")
	expectStatus(t, resp, env, http.StatusOK)

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/runs?status=pending", "")
	expectStatus(t, resp, env, http.StatusOK)
	var runs []run.Run
	_ = json.Unmarshal(env.Data, &runs)
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/runs?status=bogus", "")
	expectStatus(t, resp, env, http.StatusBadRequest)

	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/runs/999", "")
	expectStatus(t, resp, env, http.StatusNotFound)

	resp, env = do(t, http.MethodPost, ts.URL+"/api/v1/runs", `{"runDate":"March 5"}`)
	expectStatus(t, resp, env, http.StatusBadRequest)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
