package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/eloquentai/eloquent-chat/internal/chat"
	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response. Buffer-first so headers go out only
// after successful encoding, leaving room for a clean 500 on failure.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("writing response body", "error", err)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// writeDomainError maps a pipeline error onto status, code, and a
// client-safe message, then writes it.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	status, code, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, message, logger)
}

// classifyError maps domain sentinel errors to HTTP semantics. The message
// never leaks whether another owner's resource exists.
func classifyError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, identity.ErrQuotaExceeded):
		return http.StatusForbidden, "quota_exceeded", "free message limit reached, please create an account to continue"
	case errors.Is(err, identity.ErrAlreadyPromoted):
		return http.StatusForbidden, "token_promoted", "this anonymous session was upgraded, please log in"
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "forbidden", "access denied"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found", "session not found"
	case errors.Is(err, session.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid_cursor", "invalid pagination cursor"
	case errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest, "empty_message", "message must not be empty"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "an account with this email already exists"
	case errors.Is(err, identity.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", "password must be at least 8 characters"
	case errors.Is(err, identity.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", "invalid email address"
	case errors.Is(err, chat.ErrGenerationFailed):
		return http.StatusBadGateway, "generation_failed", "the assistant could not complete a response"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}
