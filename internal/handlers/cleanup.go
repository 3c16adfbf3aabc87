package handlers

import (
	"net/http"

	"library-indexer/internal/cleanup"
	"library-indexer/internal/library"
)

// RunCleanup runs a cleanup cycle now. kind is routine (default) or
// emergency; an emergency cycle also closes every pooled database.
func (h *Handlers) RunCleanup(w http.ResponseWriter, r *http.Request) {
	var report cleanup.Report
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", cleanup.KindRoutine:
		report = h.Cleanup.RunRoutine()
	case cleanup.KindEmergency:
		report = h.Cleanup.RunEmergency("requested via API")
	default:
		writeError(w, library.Invalid("kind", "must be %q or %q, got %q", cleanup.KindRoutine, cleanup.KindEmergency, kind))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
