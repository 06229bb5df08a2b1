package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/platform/sqlite"
	runrepo "github.com/Tudornitu1/stock-tracker-gcs/internal/repository/run"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

const aaplBody = `{"ticker":"AAPL","status":"OK","resultsCount":1,"results":[{"v":60108400,"o":187.7,"c":187.44,"h":188.11,"l":186.3,"t":1699920000000}]}`

func setEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"NO_DOTENV":                  "1",
		"POLYGON_API_KEY":            "pk_test",
		"POLYGON_BASE_URL":           baseURL,
		"STORE_BACKEND":              "sqlite",
		"DB_PATH":                    filepath.Join(dir, "stock.db"),
		"LEDGER_DB_PATH":             filepath.Join(dir, "ledger.db"),
		"ARCHIVE_BACKEND":            "local",
		"ARCHIVE_DIR":                filepath.Join(dir, "archive"),
		"SYMBOLS":                    "AAPL,ZZZZ",
		"SYMBOL_DELAY":               "0s",
		"MONGO_DB_CONNECTION_STRING": "",
		"GCS_BUCKET_NAME":            "",
		"LOG_LEVEL":                  "error",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	setEnv(t, "https://api.polygon.io")

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "api_key: REDACTED")
	assert.NotContains(t, out, "pk_test")
	assert.Contains(t, out, "- AAPL")
}

func TestRunCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/ticker/AAPL/") {
			_, _ = w.Write([]byte(aaplBody))
			return
		}
		_, _ = w.Write([]byte(`{"ticker":"ZZZZ","status":"OK","resultsCount":0}`))
	}))
	t.Cleanup(ts.Close)
	dir := setEnv(t, ts.URL)

	out, err := execute(t, "run", "--date", "2023-11-15")
	require.NoError(t, err)
	assert.Contains(t, out, "1 loaded, 1 skipped")
	assert.Contains(t, out, "raw_stock_data/ticker=AAPL/date=2023-11-15/data.json")

	archived, err := os.ReadFile(filepath.Join(dir, "archive", "raw_stock_data", "ticker=AAPL", "date=2023-11-15", "data.json"))
	require.NoError(t, err)
	assert.Equal(t, aaplBody, string(archived))

	// A second run for the same date is a new run that changes nothing.
	out, err = execute(t, "run", "--date", "2023-11-15")
	require.NoError(t, err)
	assert.Contains(t, out, "1 loaded, 1 skipped")

	exportDir := filepath.Join(dir, "export")
	out, err = execute(t, "export", "--out", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 records to 1 files")
	assert.FileExists(t, filepath.Join(exportDir, "AAPL", "2023.parquet"))
}

func TestRunCommand_MissingAPIKey(t *testing.T) {
	setEnv(t, "https://api.polygon.io")
	t.Setenv("POLYGON_API_KEY", "")

	_, err := execute(t, "run", "--date", "2023-11-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLYGON_API_KEY")
}

func TestRunCommand_InvalidDate(t *testing.T) {
	setEnv(t, "https://api.polygon.io")

	_, err := execute(t, "run", "--date", "15/11/2023")
	require.Error(t, err)
}

func aaplServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/ticker/AAPL/") {
			hits.Add(1)
			_, _ = w.Write([]byte(aaplBody))
			return
		}
		_, _ = w.Write([]byte(`{"ticker":"ZZZZ","status":"OK","resultsCount":0}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// seedRunning leaves a running CLI run for 2023-11-15 whose last heartbeat
// was at heartbeat, as a killed process would.
func seedRunning(t *testing.T, dir string, heartbeat time.Time) int64 {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	r := &run.Run{
		Trigger: run.TriggerCLI,
		RunDate: time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC),
		Status:  run.StatusRunning,
	}
	require.NoError(t, runrepo.NewRepository(db.DB).Create(context.Background(), r))
	_, err = db.Exec(`UPDATE runs SET updated_at = ? WHERE id = ?`, heartbeat.UTC().Format(time.RFC3339), r.ID)
	require.NoError(t, err)
	return r.ID
}

func TestRunCommand_TakesOverAbandonedRun(t *testing.T) {
	var hits atomic.Int32
	dir := setEnv(t, aaplServer(t, &hits).URL)
	id := seedRunning(t, dir, time.Now().Add(-time.Hour))

	out, err := execute(t, "run", "--date", "2023-11-15")
	require.NoError(t, err)
	assert.Contains(t, out, "run 1 (2023-11-15): 1 loaded, 1 skipped")
	assert.Equal(t, int64(1), id)
}

func TestRunCommand_RefusesRunWithLiveOwner(t *testing.T) {
	var hits atomic.Int32
	dir := setEnv(t, aaplServer(t, &hits).URL)
	seedRunning(t, dir, time.Now())

	_, err := execute(t, "run", "--date", "2023-11-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
	assert.Zero(t, hits.Load())
}

func TestRunCommand_DeduplicatesSymbols(t *testing.T) {
	var hits atomic.Int32
	setEnv(t, aaplServer(t, &hits).URL)

	out, err := execute(t, "run", "--date", "2023-11-15", "--symbols", "AAPL,aapl", "--symbols", " AAPL ")
	require.NoError(t, err)
	assert.Contains(t, out, "1 loaded, 0 skipped")
	assert.Equal(t, int32(1), hits.Load())
}
