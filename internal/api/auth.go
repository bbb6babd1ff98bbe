package api

import (
	"encoding/json"
	"net/http"

	"github.com/eloquentai/eloquent-chat/internal/log"
)

const maxAuthBodyBytes = 16 << 10 // 16KB

type authHandler struct {
	gate   Gate
	logger log.Logger
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// AnonymousToken overrides the cookie on promote, for clients that
	// manage the token themselves.
	AnonymousToken string `json:"anonymous_token,omitempty"`
}

type userDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	User             userDTO `json:"user"`
	AccessCredential string  `json:"access_credential"`
}

type promoteResponse struct {
	User             userDTO `json:"user"`
	AccessCredential string  `json:"access_credential"`
	SessionsMoved    int     `json:"sessions_moved"`
}

// register handles POST /api/v1/auth/register.
func (h *authHandler) register(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, credential, err := h.gate.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		User:             userDTO{ID: user.ID.String(), Email: user.Email},
		AccessCredential: credential,
	}, h.logger)
}

// login handles POST /api/v1/auth/login.
func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, credential, err := h.gate.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:             userDTO{ID: user.ID.String(), Email: user.Email},
		AccessCredential: credential,
	}, h.logger)
}

// promote handles POST /api/v1/auth/promote: upgrades the caller's
// anonymous history into an account. The anonymous token comes from the
// request body or, failing that, the caller's cookie.
func (h *authHandler) promote(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	token := body.AnonymousToken
	if token == "" {
		if owner, ok := ownerFromContext(r.Context()); ok && owner.Anonymous() {
			token = owner.AnonToken
		}
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing_anonymous_token", "no anonymous token to promote", h.logger)
		return
	}

	user, credential, moved, err := h.gate.Promote(r.Context(), token, body.Email, body.Password)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	// The token is retired; drop the cookie so the client starts clean.
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, promoteResponse{
		User:             userDTO{ID: user.ID.String(), Email: user.Email},
		AccessCredential: credential,
		SessionsMoved:    moved,
	}, h.logger)
}

func (h *authHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body", h.logger)
		return credentialsRequest{}, false
	}
	return body, true
}
