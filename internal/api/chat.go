package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/chat"
	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

// maxChatBodyBytes caps chat request bodies.
const maxChatBodyBytes = 1 << 20 // 1MB

// quotaUnlimited marks registered users in quota fields.
const quotaUnlimited = -1

// Orchestrator is the chat pipeline the handlers drive.
type Orchestrator interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Reply, error)
	Start(ctx context.Context, req chat.Request) (*chat.Turn, error)
}

type chatHandler struct {
	orch   Orchestrator
	gate   Gate
	logger log.Logger
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

type citationDTO struct {
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
	Excerpt  string  `json:"excerpt"`
	Category string  `json:"category,omitempty"`
}

type messageDTO struct {
	ID             string        `json:"id"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	Status         string        `json:"status"`
	Sources        []citationDTO `json:"sources,omitempty"`
	SequenceNumber int           `json:"sequence_number"`
	CreatedAt      string        `json:"created_at"`
}

type chatResponse struct {
	SessionID      string        `json:"session_id"`
	Message        messageDTO    `json:"message"`
	Sources        []citationDTO `json:"sources"`
	Degraded       bool          `json:"degraded"`
	QuotaRemaining int           `json:"quota_remaining"`
}

// streamMetadata is the terminal frame of a successful stream.
type streamMetadata struct {
	SessionID      string `json:"session_id"`
	MessageID      string `json:"message_id"`
	Status         string `json:"status"`
	Degraded       bool   `json:"degraded"`
	QuotaRemaining int    `json:"quota_remaining"`
}

// send handles POST /api/v1/chat: the buffered, non-streaming variant.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, owner, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	reply, err := h.orch.Handle(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:      reply.Session.ID.String(),
		Message:        toMessageDTO(reply.Message),
		Sources:        toCitationDTOs(reply.Citations),
		Degraded:       reply.Degraded,
		QuotaRemaining: h.quotaRemaining(r, owner),
	}, h.logger)
}

// stream handles POST /api/v1/chat/stream: SSE with one event per frame.
// Frame order is sources, then content deltas, then either metadata or
// error, then the done marker.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	req, owner, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	turn, err := h.orch.Start(r.Context(), req)
	if err != nil {
		// Nothing was written yet, so a plain JSON error is still possible.
		writeDomainError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.writeEvent(w, flusher, "sources", toCitationDTOs(turn.Citations))

	for ev := range turn.Events {
		switch ev.Type {
		case chat.EventDelta:
			h.writeEvent(w, flusher, "content", map[string]string{"content": ev.Delta})
		case chat.EventDone:
			meta := streamMetadata{
				SessionID:      turn.Session.ID.String(),
				Status:         session.StatusCompleted,
				Degraded:       turn.Degraded,
				QuotaRemaining: h.quotaRemaining(r, owner),
			}
			if ev.Message != nil {
				meta.MessageID = ev.Message.ID.String()
				meta.Status = ev.Message.Status
			}
			h.writeEvent(w, flusher, "metadata", meta)
		case chat.EventError:
			_, code, message := classifyError(ev.Err)
			h.logger.Error("stream failed", "error", ev.Err, "session_id", turn.Session.ID)
			h.writeEvent(w, flusher, "error", errorDetail{Code: code, Message: message})
		}
	}

	// Explicit end-of-stream marker so clients can distinguish completion
	// from a dropped connection.
	fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

func (h *chatHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encoding stream event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// decodeRequest parses and validates the shared chat request shape.
func (h *chatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (chat.Request, identity.Owner, bool) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "request owner missing", h.logger)
		return chat.Request{}, identity.Owner{}, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", h.logger)
		} else {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body", h.logger)
		}
		return chat.Request{}, identity.Owner{}, false
	}

	req := chat.Request{Question: body.Message, Owner: owner}
	if body.SessionID != "" {
		id, err := uuid.Parse(body.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "invalid session id", h.logger)
			return chat.Request{}, identity.Owner{}, false
		}
		req.SessionID = id
	}
	if body.MessageID != "" {
		id, err := uuid.Parse(body.MessageID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_message_id", "invalid message id", h.logger)
			return chat.Request{}, identity.Owner{}, false
		}
		req.MessageID = id
	}

	return req, owner, true
}

// quotaRemaining reports the anonymous budget left, or quotaUnlimited for
// registered users. Best effort; failures degrade to unlimited rather than
// failing a turn that already succeeded.
func (h *chatHandler) quotaRemaining(r *http.Request, owner identity.Owner) int {
	if !owner.Anonymous() {
		return quotaUnlimited
	}
	remaining, err := h.gate.Remaining(r.Context(), owner)
	if err != nil {
		h.logger.Warn("reading quota remaining", "error", err)
		return quotaUnlimited
	}
	return remaining
}

func toMessageDTO(m *session.Message) messageDTO {
	return messageDTO{
		ID:             m.ID.String(),
		Role:           m.Role,
		Content:        m.Content,
		Status:         m.Status,
		Sources:        toCitationDTOs(m.Citations),
		SequenceNumber: m.SequenceNumber,
		CreatedAt:      m.CreatedAt.UTC().Format(timeFormat),
	}
}

func toCitationDTOs(citations []session.Citation) []citationDTO {
	out := make([]citationDTO, 0, len(citations))
	for _, c := range citations {
		out = append(out, citationDTO{
			SourceID: c.SourceID,
			Score:    c.Score,
			Excerpt:  c.Excerpt,
			Category: c.Category,
		})
	}
	return out
}
