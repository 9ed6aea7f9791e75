package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// createKeyRequest is the body of POST /api-keys. The body may be empty,
// in which case a key is generated.
type createKeyRequest struct {
	Key string `json:"key"`
}

// messageResponse is returned by endpoints without a resource to echo.
type messageResponse struct {
	Message string `json:"message"`
}

// handleListKeys handles GET /api-keys.
func (h *Handler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.List(r.Context(), s.Subject.Username)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*domain.APIKey{}
	}
	h.writeJSON(w, r, http.StatusOK, keys)
}

// handleCreateKey handles POST /api-keys.
func (h *Handler) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req createKeyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrValidation.Code, "Invalid request body")
		return
	}

	key, err := h.keys.Create(r.Context(), s.Subject.Username, req.Key)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyConflict) {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrAPIKeyConflict.Code, "API key already exists")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}
	h.metrics.KeysCreated.Inc()
	logger.L(r.Context()).Info("api key created", "owner", s.Subject.Username)

	h.writeJSON(w, r, http.StatusCreated, key)
}

// handleToggleKey handles POST /api-keys/{key}/toggle and returns the key
// with its new state.
func (h *Handler) handleToggleKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	key, err := h.keys.Toggle(r.Context(), s.Subject.Username, r.PathValue("key"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	logger.L(r.Context()).Info("api key toggled", "owner", s.Subject.Username, "active", key.IsActive)
	h.writeJSON(w, r, http.StatusOK, key)
}

// handleDeleteKey handles DELETE /api-keys/{key}.
func (h *Handler) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	if err := h.keys.Delete(r.Context(), s.Subject.Username, key); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.metrics.KeysDeleted.Inc()
	h.writeJSON(w, r, http.StatusOK, messageResponse{Message: fmt.Sprintf("API key %s deleted", key)})
}

// handleKeyStats handles GET /api-keys/stats.
func (h *Handler) handleKeyStats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	stats, err := h.keys.Stats(r.Context(), s.Subject.Username)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

// handleLogUsage handles POST /api-keys/{key}/log, recording one use of
// the caller's own key.
func (h *Handler) handleLogUsage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if _, err := h.keys.LogUsage(r.Context(), s.Subject.Username, r.PathValue("key")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, messageResponse{Message: "Usage logged"})
}
