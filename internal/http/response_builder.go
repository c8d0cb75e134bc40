package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON renders v with the given status. Encoding failures are
// logged; the status line has already been sent at that point.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
}

// writeError maps domain errors onto HTTP statuses:
// validation errors 422, missing rows 404, empty user set 409,
// anything else 500 with the detail kept out of the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyName):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrNoActiveUsers):
		status = http.StatusConflict
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

// badRequest renders a 400 for malformed payloads.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: msg})
}
