package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"library-indexer/internal/middleware"
)

// Router builds the API routes. /metrics is served only when metrics is
// true.
func (h *Handlers) Router(metrics bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics)

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead).Name("health")
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("liveness")
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")
	if metrics {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet).Name("metrics")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/libraries", h.ListLibraries).Methods(http.MethodGet)
	api.HandleFunc("/scans/active", h.ActiveScans).Methods(http.MethodGet)
	api.HandleFunc("/watchers", h.ListWatchers).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", h.RunCleanup).Methods(http.MethodPost)

	lib := api.PathPrefix("/libraries/{id}").Subrouter()
	lib.HandleFunc("/scan", h.FullScan).Methods(http.MethodPost)
	lib.HandleFunc("/sync", h.IncrementalSync).Methods(http.MethodPost)
	lib.HandleFunc("/status", h.ScanStatus).Methods(http.MethodGet)
	lib.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	lib.HandleFunc("/images", h.InsertBatch).Methods(http.MethodPost)
	lib.HandleFunc("/images/{path:.+}", h.GetImage).Methods(http.MethodGet)
	lib.HandleFunc("/thumbnails/{path:.+}", h.GetThumbnail).Methods(http.MethodGet, http.MethodHead)
	lib.HandleFunc("/folders", h.ListFolders).Methods(http.MethodGet)
	lib.HandleFunc("/watch", h.StartWatch).Methods(http.MethodPost)
	lib.HandleFunc("/watch", h.StopWatch).Methods(http.MethodDelete)
	lib.HandleFunc("/watch", h.WatchStatus).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	return r
}
