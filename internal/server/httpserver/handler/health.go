package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/infra/buildinfo"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

type healthResponse struct {
	Status  string `json:"status"`
	Time    string `json:"time"`
	Version string `json:"version,omitempty"`
}

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, healthResponse{
		Status:  "healthy",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: buildinfo.Version,
	})
}

// handleReady handles GET /ready, failing while storage is unreachable.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logger.L(r.Context()).Warn("readiness check failed", "error", err)
			h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrStorage.Code, "Storage unavailable")
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, healthResponse{
		Status: "ready",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
