package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"library-indexer/internal/startup"
)

// VersionResponse is the body of /version.
type VersionResponse struct {
	startup.BuildInfo
	Libraries int `json:"libraries"`
}

// GetVersion reports build information and the number of configured
// libraries.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	resp := VersionResponse{BuildInfo: startup.GetBuildInfo()}
	if h.Libraries != nil {
		resp.Libraries = len(h.Libraries.List())
	}
	writeJSON(w, http.StatusOK, resp)
}

// MetricsHandler serves the default registry. A collector that fails does
// not hide the others.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}),
	)
}
