package handlers

import (
	"context"
	"net/http"

	"library-indexer/internal/coordinator"
)

// StatusResponse describes the scan state of one library.
type StatusResponse struct {
	coordinator.Session
	PendingChanges int `json:"pendingChanges"`
}

// FullScan starts (or joins) a full scan. With wait=true it replies once
// the session is terminal; otherwise it replies 202 with the session.
func (h *Handlers) FullScan(w http.ResponseWriter, r *http.Request) {
	h.startScan(w, r, h.Scans.FullScan)
}

// IncrementalSync starts (or joins) an incremental sync.
func (h *Handlers) IncrementalSync(w http.ResponseWriter, r *http.Request) {
	h.startScan(w, r, h.Scans.IncrementalSync)
}

type startFunc func(ctx context.Context, libraryID string, wait bool) (coordinator.Session, error)

func (h *Handlers) startScan(w http.ResponseWriter, r *http.Request, start startFunc) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	wait, err := queryBool(r, "wait")
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := start(r.Context(), lib.ID, wait)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if session.State.Terminal() {
		status = http.StatusOK
	}
	writeJSON(w, status, session)
}

// ScanStatus returns the current or last session of a library.
func (h *Handlers) ScanStatus(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Session:        h.Scans.Status(lib.ID),
		PendingChanges: h.Scans.Pending(lib.ID),
	})
}

// ActiveScans lists the sessions that are currently scanning.
func (h *Handlers) ActiveScans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Scans.ActiveStates())
}

// ListLibraries lists the configured libraries.
func (h *Handlers) ListLibraries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Libraries.List())
}
