// Package session persists conversation sessions and their append-only
// message logs in PostgreSQL.
//
// Sessions belong to exactly one owner at a time: either an anonymous token
// (owner id "anon:<token>") or a registered user (owner id is the user UUID).
// Ownership moves exactly once, when an anonymous visitor promotes to a
// registered account. The package also keeps the per-token quota counters
// the identity gate reads; the counters live here because they must update
// in the same database as the sessions they meter.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message statuses. A message is completed unless generation was cut off
// mid-stream, in which case the partial text persists as incomplete.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

// AnonOwnerPrefix marks owner ids that are anonymous tokens rather than
// user UUIDs.
const AnonOwnerPrefix = "anon:"

// AnonOwnerID converts an anonymous token into its owner id form.
func AnonOwnerID(token string) string {
	return AnonOwnerPrefix + token
}

// Session is one conversation.
type Session struct {
	ID           uuid.UUID
	OwnerID      string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// LastMessagePreview is the leading slice of the session's newest
	// message, for list rendering. Populated by ListSessions only.
	LastMessagePreview string
}

// Citation links an assistant message back to the knowledge passage that
// grounded it. Persisted as JSONB alongside the message.
type Citation struct {
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
	Excerpt  string  `json:"excerpt"`
	Category string  `json:"category,omitempty"`
}

// Message is one entry in a session's append-only log.
// Immutable once persisted.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string
	Content        string
	Status         string
	Citations      []Citation
	SequenceNumber int
	CreatedAt      time.Time
}

// Page is one window of a session's message log, oldest first.
type Page struct {
	Messages   []*Message
	TotalCount int
	HasMore    bool
	NextCursor string // set only when HasMore
}

// QuotaState is the server-side counter for one anonymous token.
type QuotaState struct {
	Count    int
	Promoted bool
}
