package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/passwatch/pkg/metrics"
)

// ReadinessProvider reports whether a model is loaded.
type ReadinessProvider interface {
	ModelReady() bool
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	ready   ReadinessProvider
	metrics http.Handler
}

// NewHealthHandler creates a new health handler. ready may be nil.
func NewHealthHandler(ready ReadinessProvider) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// HandleHealth handles GET /healthz requests.
// Clients asking for application/json get a liveness document; everyone else
// gets the Prometheus exposition.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		resp := healthResponse{Status: "ok"}
		if h.ready != nil {
			resp.ModelLoaded = h.ready.ModelReady()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	h.metrics.ServeHTTP(w, r)
}
