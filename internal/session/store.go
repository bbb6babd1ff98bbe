package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eloquentai/eloquent-chat/internal/log"
)

// Message page limits.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Execer is the minimal database surface for operations that run inside a
// caller-owned transaction. Both pgx.Tx and *pgxpool.Pool satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RowQuerier is the single-row read surface for caller-owned transactions.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages sessions, messages, and anonymous quota counters.
//
// Store is safe for concurrent use by multiple goroutines. Concurrent
// appends to the same session serialize on a row lock, so sequence numbers
// never collide and message ordering never interleaves.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store on the given connection pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for callers that compose their own
// transactions across stores, such as the identity gate's promotion.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// GetOrCreate returns the session identified by sessionID after checking it
// belongs to ownerID, or creates a fresh session under ownerID when
// sessionID is uuid.Nil.
func (s *Store) GetOrCreate(ctx context.Context, sessionID uuid.UUID, ownerID string) (*Session, error) {
	if sessionID == uuid.Nil {
		return s.create(ctx, ownerID)
	}
	return s.Get(ctx, sessionID, ownerID)
}

func (s *Store) create(ctx context.Context, ownerID string) (*Session, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	sess := &Session{ID: uuid.New(), OwnerID: ownerID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, owner_id) VALUES ($1, $2) RETURNING created_at, updated_at`,
		sess.ID, ownerID,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "session_id", sess.ID, "owner_id", ownerID)
	return sess, nil
}

const getSessionSQL = `
SELECT id, owner_id, COALESCE(title, ''), message_count, created_at, updated_at
FROM sessions
WHERE id = $1`

// Get returns a session after validating ownership. A missing session is
// ErrNotFound; an owner mismatch is ErrForbidden.
func (s *Store) Get(ctx context.Context, sessionID uuid.UUID, ownerID string) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, getSessionSQL, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	if sess.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return sess, nil
}

// Append durably adds one message to a session's log, assigning the next
// sequence number under a session row lock. The session's message_count and
// updated_at move in the same transaction, so readers never observe one
// without the other.
//
// Append is idempotent on msg.ID: re-appending an already persisted message
// returns the stored copy without a second insert or counter bump. A zero
// msg.ID gets a fresh UUID.
func (s *Store) Append(ctx context.Context, msg *Message) (*Message, error) {
	if msg.SessionID == uuid.Nil {
		return nil, errors.New("message session id is required")
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = StatusCompleted
	}

	citationsJSON, err := json.Marshal(msg.Citations)
	if err != nil {
		return nil, fmt.Errorf("marshaling citations: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("append rollback", "error", rbErr)
		}
	}()

	// Serialize concurrent appends to this session.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, msg.SessionID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locking session: %w", err)
	}

	// Idempotent retry path: the message is already durable.
	existing, err := s.getMessageTx(ctx, tx, msg.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checking existing message: %w", err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`,
		msg.SessionID,
	).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("reading max sequence number: %w", err)
	}
	msg.SequenceNumber = maxSeq + 1

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, session_id, role, content, status, citations, sequence_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Status, citationsJSON, msg.SequenceNumber,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET message_count = message_count + 1, updated_at = now() WHERE id = $1`,
		msg.SessionID,
	); err != nil {
		return nil, fmt.Errorf("updating session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended message",
		"session_id", msg.SessionID,
		"message_id", msg.ID,
		"role", msg.Role,
		"sequence", msg.SequenceNumber,
	)
	return msg, nil
}

const getMessageSQL = `
SELECT id, session_id, role, content, status, citations, sequence_number, created_at
FROM messages
WHERE id = $1`

func (s *Store) getMessageTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Message, error) {
	return scanMessage(tx.QueryRow(ctx, getMessageSQL, id))
}

// SetTitleIfUnset records the session title derived from the first exchange.
// A session that already has a title keeps it.
func (s *Store) SetTitleIfUnset(ctx context.Context, sessionID uuid.UUID, title string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $2 WHERE id = $1 AND title IS NULL`,
		sessionID, title,
	); err != nil {
		return fmt.Errorf("setting session title: %w", err)
	}
	return nil
}

const listMessagesSQL = `
SELECT id, session_id, role, content, status, citations, sequence_number, created_at
FROM messages
WHERE session_id = $1 AND sequence_number > $2
ORDER BY sequence_number ASC
LIMIT $3`

// Messages returns one page of a session's log, oldest first, resuming
// strictly after the supplied cursor. Ownership is validated first.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, ownerID, cursor string, limit int) (*Page, error) {
	if _, err := s.Get(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}

	afterSeq, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE session_id = $1`, sessionID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	// Fetch one extra row to detect whether another page follows.
	rows, err := s.pool.Query(ctx, listMessagesSQL, sessionID, afterSeq, limit+1)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	page := &Page{TotalCount: total}
	if len(msgs) > limit {
		page.HasMore = true
		msgs = msgs[:limit]
	}
	page.Messages = msgs
	if page.HasMore && len(msgs) > 0 {
		page.NextCursor = encodeCursor(msgs[len(msgs)-1].SequenceNumber)
	}
	return page, nil
}

const recentMessagesSQL = `
SELECT id, session_id, role, content, status, citations, sequence_number, created_at
FROM messages
WHERE session_id = $1 AND status = 'completed'
ORDER BY sequence_number DESC
LIMIT $2`

// Recent returns the last n completed messages of a session in
// chronological order, for prompt history. Incomplete messages are partial
// text and stay out of the prompt.
func (s *Store) Recent(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, recentMessagesSQL, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("reading recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	// Newest-first from the query; history reads oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// previewLen caps the last-message preview returned by ListSessions.
const previewLen = 100

const listSessionsSQL = `
SELECT s.id, s.owner_id, COALESCE(s.title, ''), s.message_count, s.created_at, s.updated_at,
       COALESCE(last.preview, '')
FROM sessions s
LEFT JOIN LATERAL (
    SELECT left(content, $2) AS preview
    FROM messages
    WHERE session_id = s.id
    ORDER BY sequence_number DESC
    LIMIT 1
) last ON TRUE
WHERE s.owner_id = $1
ORDER BY s.updated_at DESC`

// ListSessions returns all sessions for an owner, most recently active
// first, each with a preview of its newest message.
func (s *Store) ListSessions(ctx context.Context, ownerID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, listSessionsSQL, ownerID, previewLen)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.MessageCount,
			&sess.CreatedAt, &sess.UpdatedAt, &sess.LastMessagePreview)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and, via cascade, its messages. Deleting a
// missing or already-deleted session succeeds; deleting another owner's
// session is ErrForbidden.
func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID, ownerID string) error {
	var storedOwner string
	err := s.pool.QueryRow(ctx, `SELECT owner_id FROM sessions WHERE id = $1`, sessionID).Scan(&storedOwner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking session owner: %w", err)
	}
	if storedOwner != ownerID {
		return ErrForbidden
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}

	s.logger.Debug("deleted session", "session_id", sessionID)
	return nil
}

// Reparent moves every session owned by fromOwner to toOwner and returns
// how many moved. It runs on the supplied Execer so promotion can include
// it in one transaction.
func (s *Store) Reparent(ctx context.Context, db Execer, fromOwner, toOwner string) (int64, error) {
	tag, err := db.Exec(ctx,
		`UPDATE sessions SET owner_id = $2 WHERE owner_id = $1`,
		fromOwner, toOwner,
	)
	if err != nil {
		return 0, fmt.Errorf("reparenting sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Quota returns the counter state for an anonymous token. A token that has
// never sent a message reads as zero, unpromoted.
func (s *Store) Quota(ctx context.Context, token string) (QuotaState, error) {
	return s.QuotaOn(ctx, s.pool, token)
}

// QuotaOn is Quota running on a caller-supplied handle, for reads that must
// observe or join an open transaction.
func (s *Store) QuotaOn(ctx context.Context, db RowQuerier, token string) (QuotaState, error) {
	var state QuotaState
	err := db.QueryRow(ctx,
		`SELECT message_count, promoted FROM anon_quotas WHERE token = $1`, token,
	).Scan(&state.Count, &state.Promoted)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuotaState{}, nil
	}
	if err != nil {
		return QuotaState{}, fmt.Errorf("reading quota for token: %w", err)
	}
	return state, nil
}

// IncrementQuota atomically bumps an anonymous token's counter by one and
// returns the new count. The upsert makes concurrent sends against the same
// token serialize in the database rather than double-count.
func (s *Store) IncrementQuota(ctx context.Context, token string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO anon_quotas (token, message_count)
		 VALUES ($1, 1)
		 ON CONFLICT (token) DO UPDATE
		 SET message_count = anon_quotas.message_count + 1, updated_at = now()
		 RETURNING message_count`,
		token,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing quota: %w", err)
	}
	return count, nil
}

// RetireQuota marks an anonymous token's quota as promoted, permanently.
// Runs on the supplied Execer so promotion can include it in one
// transaction.
func (s *Store) RetireQuota(ctx context.Context, db Execer, token string) error {
	if _, err := db.Exec(ctx,
		`INSERT INTO anon_quotas (token, message_count, promoted)
		 VALUES ($1, 0, TRUE)
		 ON CONFLICT (token) DO UPDATE SET promoted = TRUE, updated_at = now()`,
		token,
	); err != nil {
		return fmt.Errorf("retiring quota: %w", err)
	}
	return nil
}

// scanner abstracts pgx.Row and pgx.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		msg           Message
		citationsJSON []byte
	)
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Status, &citationsJSON, &msg.SequenceNumber, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if len(citationsJSON) > 0 {
		if err := json.Unmarshal(citationsJSON, &msg.Citations); err != nil {
			return nil, fmt.Errorf("unmarshaling citations: %w", err)
		}
	}
	return &msg, nil
}
