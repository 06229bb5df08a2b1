package server

import (
	"net/http"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(barSvc *bar.Service, runSvc *run.Service) http.Handler {
	return newMux(barSvc, runSvc)
}

func newMux(barSvc *bar.Service, runSvc *run.Service) http.Handler {
	h := &handler{
		barSvc: barSvc,
		runSvc: runSvc,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/v1/symbols", h.listSymbols)

	mux.HandleFunc("GET /api/v1/bars/{symbol}", h.getSeries)
	mux.HandleFunc("GET /api/v1/bars/{symbol}/summary", h.getSummary)
	mux.HandleFunc("GET /api/v1/bars/{symbol}/{date}", h.getBar)
	mux.HandleFunc("PUT /api/v1/bars/{symbol}/{date}", h.putBar)
	mux.HandleFunc("DELETE /api/v1/bars/{symbol}/{date}", h.deleteBar)

	mux.HandleFunc("PATCH /api/v1/records/{id}", h.patchRecord)
	mux.HandleFunc("DELETE /api/v1/records/{id}", h.deleteRecord)

	mux.HandleFunc("GET /api/v1/runs", h.listRuns)
	mux.HandleFunc("POST /api/v1/runs", h.createRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.getRun)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
