package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// registerResponse is the body of a successful POST /register.
type registerResponse struct {
	Message  string    `json:"message"`
	Username string    `json:"username"`
	Created  time.Time `json:"created_at"`
}

// tokenResponse is the body of a successful POST /login.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleRegister handles POST /register.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), creds)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrUserExists.Code, "Username already registered")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}
	h.metrics.UsersRegistered.Inc()
	logger.L(r.Context()).Info("user registered", "username", user.Username)

	h.writeJSON(w, r, http.StatusCreated, registerResponse{
		Message:  "User created successfully",
		Username: user.Username,
		Created:  user.CreatedAt,
	})
}

// handleLogin handles POST /login with a form-encoded username and
// password.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrValidation.Code, "Invalid form body")
		return
	}
	creds := domain.Credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if creds.Username == "" || creds.Password == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrValidation.Code, "Username and password are required")
		return
	}

	resp, err := h.accounts.Login(r.Context(), creds)
	if err != nil {
		h.metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		h.handleServiceError(w, r, err)
		return
	}
	h.metrics.LoginsTotal.WithLabelValues("ok").Inc()

	h.writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
	})
}

// handleLogout handles POST /logout. The session token is revoked.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Logout(r.Context(), s.Token); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /users/me.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, r, http.StatusOK, s.Subject)
}
