package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/apperror"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	"github.com/Tudornitu1/stock-tracker-gcs/internal/run"
)

const maxBodyBytes = 1 << 20

type handler struct {
	barSvc *bar.Service
	runSvc *run.Service
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.barSvc.Health(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listSymbols(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.barSvc.Symbols())
}

func (h *handler) getSeries(w http.ResponseWriter, r *http.Request) {
	req := bar.SeriesRequest{
		Symbol: r.PathValue("symbol"),
		Format: r.URL.Query().Get("format"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}

	resp, err := h.barSvc.Series(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if req.Format == "csv" {
		writeCSV(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.barSvc.Summary(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) getBar(w http.ResponseWriter, r *http.Request) {
	key, ok := keyRequest(w, r)
	if !ok {
		return
	}

	b, err := h.barSvc.Find(r.Context(), key)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) putBar(w http.ResponseWriter, r *http.Request) {
	key, ok := keyRequest(w, r)
	if !ok {
		return
	}
	values, ok := decodeValues(w, r)
	if !ok {
		return
	}

	b, err := h.barSvc.Save(r.Context(), bar.SaveRequest{Symbol: key.Symbol, Date: key.Date, Values: values})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) deleteBar(w http.ResponseWriter, r *http.Request) {
	key, ok := keyRequest(w, r)
	if !ok {
		return
	}

	if err := h.barSvc.Delete(r.Context(), key); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) patchRecord(w http.ResponseWriter, r *http.Request) {
	values, ok := decodeValues(w, r)
	if !ok {
		return
	}

	b, err := h.barSvc.Update(r.Context(), bar.UpdateRequest{ID: r.PathValue("id"), Values: values})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.barSvc.DeleteByID(r.Context(), bar.IDRequest{ID: r.PathValue("id")}); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	rn, err := h.runSvc.Get(r.Context(), run.GetRunRequest{ID: id})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	req := run.ListRunsRequest{Status: run.Status(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}

	runs, err := h.runSvc.List(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if runs == nil {
		runs = []run.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type enqueueBody struct {
	RunDate string `json:"runDate"`
}

func (h *handler) createRun(w http.ResponseWriter, r *http.Request) {
	var body enqueueBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	req := run.EnqueueRequest{Trigger: run.TriggerManual}
	if body.RunDate != "" {
		d, err := time.Parse(bar.DateFormat, body.RunDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid runDate format, expected YYYY-MM-DD")
			return
		}
		req.RunDate = d
	}

	rn, created, err := h.runSvc.Enqueue(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	writeJSON(w, status, rn)
}

func keyRequest(w http.ResponseWriter, r *http.Request) (bar.KeyRequest, bool) {
	date, err := time.Parse(bar.DateFormat, r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return bar.KeyRequest{}, false
	}
	return bar.KeyRequest{Symbol: r.PathValue("symbol"), Date: date}, true
}

func decodeValues(w http.ResponseWriter, r *http.Request) (bar.Values, bool) {
	var in bar.ValuesInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return bar.Values{}, false
	}
	values, appErr := in.Values()
	if appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return bar.Values{}, false
	}
	return values, true
}

func writeAppError(w http.ResponseWriter, err error) {
	if ae, ok := apperror.From(err); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	slog.Error("unhandled error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
