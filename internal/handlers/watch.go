package handlers

import (
	"net/http"
)

// StartWatch starts the watcher of a library. Starting a running watcher
// returns its status.
func (h *Handlers) StartWatch(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	status, err := h.Watchers.Start(lib.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// StopWatch stops the watcher of a library.
func (h *Handlers) StopWatch(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.Watchers.Stop(lib.ID)
	writeJSON(w, http.StatusOK, h.Watchers.Status(lib.ID))
}

// WatchStatus reports the watcher of a library.
func (h *Handlers) WatchStatus(w http.ResponseWriter, r *http.Request) {
	lib, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Watchers.Status(lib.ID))
}

// ListWatchers reports every running watcher.
func (h *Handlers) ListWatchers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Watchers.List())
}
