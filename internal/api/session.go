package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

const timeFormat = time.RFC3339

type sessionHandler struct {
	store  SessionReader
	logger log.Logger
}

type sessionDTO struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	MessageCount       int    `json:"message_count"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

type sessionListResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type messagePageResponse struct {
	Messages   []messageDTO `json:"messages"`
	TotalCount int          `json:"total_count"`
	HasMore    bool         `json:"has_more"`
	Cursor     string       `json:"cursor,omitempty"`
}

// list handles GET /api/v1/sessions: the owner's sessions, most recently
// active first.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "request owner missing", h.logger)
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), owner.ID())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s))
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: out}, h.logger)
}

// messages handles GET /api/v1/sessions/{id}/messages with cursor paging.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "request owner missing", h.logger)
		return
	}

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "invalid session id", h.logger)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", h.logger)
			return
		}
	}

	page, err := h.store.Messages(r.Context(), sessionID, owner.ID(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]messageDTO, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, toMessageDTO(m))
	}
	writeJSON(w, http.StatusOK, messagePageResponse{
		Messages:   out,
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
		Cursor:     page.NextCursor,
	}, h.logger)
}

// remove handles DELETE /api/v1/sessions/{id}. Deleting a session that no
// longer exists succeeds, so retries are safe.
func (h *sessionHandler) remove(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "request owner missing", h.logger)
		return
	}

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "invalid session id", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), sessionID, owner.ID()); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSessionDTO(s *session.Session) sessionDTO {
	return sessionDTO{
		ID:                 s.ID.String(),
		Title:              s.Title,
		MessageCount:       s.MessageCount,
		LastMessagePreview: s.LastMessagePreview,
		CreatedAt:          s.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:          s.UpdatedAt.UTC().Format(timeFormat),
	}
}
