package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"library-indexer/internal/coordinator"
	"library-indexer/internal/database"
	"library-indexer/internal/library"
	"library-indexer/internal/logging"
	"library-indexer/internal/pool"
	"library-indexer/internal/watcher"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeJSON writes v with the given status. Encoding errors are logged
// since the status line is already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeError maps err onto a status code.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var ve *library.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status >= http.StatusInternalServerError {
		logging.Error("request failed: %v", err)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrUnknownLibrary), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case library.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, pool.ErrLocked):
		return http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrClosed), errors.Is(err, watcher.ErrClosed), errors.Is(err, pool.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// resolve resolves the {id} route variable, replying 404 when unknown.
func (h *Handlers) resolve(w http.ResponseWriter, r *http.Request) (library.Library, bool) {
	lib, err := h.Libraries.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return library.Library{}, false
	}
	return lib, true
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, library.Invalid(name, "%q is not a boolean", v)
	}
	return b, nil
}
