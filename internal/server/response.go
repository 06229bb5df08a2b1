package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message: message,
		Data:    "",
	})
}

func writeCSV(w http.ResponseWriter, series *bar.SeriesResponse) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", series.Symbol))
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintln(w, "Symbol,Date,Open,High,Low,Close,Volume,MA50")
	for _, p := range series.Points {
		ma := ""
		if p.MA50 != nil {
			ma = strconv.FormatFloat(*p.MA50, 'f', 6, 64)
		}
		_, _ = fmt.Fprintf(w, "%s,%s,%.6f,%.6f,%.6f,%.6f,%d,%s\n", //nolint:gosec // CSV output from internal domain types, not user input
			p.Symbol,
			p.Date.Format(bar.DateFormat),
			p.Open,
			p.High,
			p.Low,
			p.Close,
			p.Volume,
			ma,
		)
	}
}
