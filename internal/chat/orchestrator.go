package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/provider"
	"github.com/eloquentai/eloquent-chat/internal/retrieval"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

// excerptLen caps citation excerpts.
const excerptLen = 200

// Sentinel errors.
var (
	// ErrEmptyQuestion indicates a send with no message text.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrGenerationFailed wraps terminal stream failures for buffered
	// callers.
	ErrGenerationFailed = errors.New("generation failed")
)

// Retriever finds knowledge passages for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, minSimilarity float32) ([]retrieval.Match, error)
}

// Assembler builds the prompt message list. *prompt.Assembler satisfies it.
type Assembler interface {
	Assemble(question string, matches []retrieval.Match, history []provider.Message) []provider.Message
}

// Store is the session persistence surface the orchestrator needs.
// *session.Store satisfies it.
type Store interface {
	GetOrCreate(ctx context.Context, sessionID uuid.UUID, ownerID string) (*session.Session, error)
	Append(ctx context.Context, msg *session.Message) (*session.Message, error)
	Recent(ctx context.Context, sessionID uuid.UUID, n int) ([]*session.Message, error)
	SetTitleIfUnset(ctx context.Context, sessionID uuid.UUID, title string) error
}

// Gate is the quota surface the orchestrator needs. *identity.Gate
// satisfies it.
type Gate interface {
	Authorize(ctx context.Context, owner identity.Owner) error
	ConsumeQuota(ctx context.Context, owner identity.Owner) error
}

// Config tunes one orchestrator.
type Config struct {
	TopK                int
	SimilarityThreshold float32
	HistoryTurns        int
}

// Request is one chat turn ask.
type Request struct {
	Question  string
	SessionID uuid.UUID // uuid.Nil starts a new session
	Owner     identity.Owner

	// MessageID optionally carries a client-supplied id for the user
	// message, making retried sends idempotent. Zero means server-assigned.
	MessageID uuid.UUID
}

// Reply is the buffered result of a turn.
type Reply struct {
	Session   *session.Session
	Message   *session.Message // persisted assistant message
	Citations []session.Citation
	Degraded  bool // retrieval was unavailable; answer is ungrounded
}

// Turn is a started streamed exchange. The caller must drain Events; the
// channel closes after its single terminal event.
type Turn struct {
	Session     *session.Session
	UserMessage *session.Message
	Citations   []session.Citation
	Degraded    bool
	Events      <-chan Event
}

// Orchestrator runs the full pipeline for one request: quota check,
// retrieval, assembly, generation, persistence, quota consumption, session
// metadata. It is the only component the API layer calls for chat.
//
// Safe for concurrent use; each turn is independent.
type Orchestrator struct {
	retriever Retriever
	assembler Assembler
	streams   *StreamController
	titler    provider.Titler
	store     Store
	gate      Gate
	cfg       Config
	logger    log.Logger
}

// New creates an Orchestrator.
func New(retriever Retriever, assembler Assembler, streams *StreamController, titler provider.Titler, store Store, gate Gate, cfg Config, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		assembler: assembler,
		streams:   streams,
		titler:    titler,
		store:     store,
		gate:      gate,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start begins a streamed turn. By the time it returns, the quota is
// checked, the session exists, the user message is durable, and retrieval
// has run; generation proceeds on the returned Turn's event channel.
//
// A quota refusal happens before any provider call.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Turn, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	if err := o.gate.Authorize(ctx, req.Owner); err != nil {
		return nil, err
	}

	sess, err := o.store.GetOrCreate(ctx, req.SessionID, req.Owner.ID())
	if err != nil {
		return nil, err
	}
	firstExchange := sess.MessageCount == 0

	// History is read before the new question is appended; the assembler
	// places the question last itself.
	history, err := o.store.Recent(ctx, sess.ID, o.cfg.HistoryTurns)
	if err != nil {
		return nil, err
	}

	// The question becomes durable before generation begins, so a crash
	// mid-generation never loses it.
	userMsg, err := o.store.Append(ctx, &session.Message{
		ID:        req.MessageID,
		SessionID: sess.ID,
		Role:      session.RoleUser,
		Content:   question,
	})
	if err != nil {
		return nil, err
	}

	var degraded bool
	matches, err := o.retriever.Retrieve(ctx, question, o.cfg.TopK, o.cfg.SimilarityThreshold)
	if err != nil {
		// Degrade to an ungrounded answer rather than failing the turn;
		// the client gets an explicit degraded notice in the metadata.
		o.logger.Warn("retrieval degraded", "session_id", sess.ID, "error", err)
		degraded = true
		matches = nil
	}
	citations := toCitations(matches)

	msgs := o.assembler.Assemble(question, matches, toProviderMessages(history))

	out := make(chan Event, streamBuffer)
	turn := &Turn{
		Session:     sess,
		UserMessage: userMsg,
		Citations:   citations,
		Degraded:    degraded,
		Events:      out,
	}

	go o.finish(ctx, turn, question, firstExchange, req.Owner, o.streams.Run(ctx, msgs), out)

	return turn, nil
}

// Handle runs a buffered turn: the full pipeline with the stream drained
// internally.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Reply, error) {
	turn, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	for ev := range turn.Events {
		switch ev.Type {
		case EventDone:
			return &Reply{
				Session:   turn.Session,
				Message:   ev.Message,
				Citations: turn.Citations,
				Degraded:  turn.Degraded,
			}, nil
		case EventError:
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, ev.Err)
		}
	}
	return nil, fmt.Errorf("%w: stream ended without terminal event", ErrGenerationFailed)
}

// finish consumes the generation stream, persists the outcome, and relays
// events to the caller. Persistence runs detached from ctx so a client
// disconnect cannot corrupt the record of what was generated.
func (o *Orchestrator) finish(ctx context.Context, turn *Turn, question string, firstExchange bool, owner identity.Owner, inner <-chan Event, out chan Event) {
	defer close(out)

	persistCtx := context.WithoutCancel(ctx)

	for ev := range inner {
		switch ev.Type {
		case EventDelta:
			select {
			case out <- ev:
			case <-ctx.Done():
				// Consumer is gone; keep draining for the terminal event
				// so persistence still happens.
			}

		case EventDone:
			msg, err := o.store.Append(persistCtx, &session.Message{
				SessionID: turn.Session.ID,
				Role:      session.RoleAssistant,
				Content:   ev.FullText,
				Status:    session.StatusCompleted,
				Citations: turn.Citations,
			})
			if err != nil {
				o.logger.Error("persisting assistant message", "session_id", turn.Session.ID, "error", err)
				sendTerminal(ctx, out, Event{Type: EventError, FullText: ev.FullText, Err: err})
				return
			}

			// Quota is charged only now, after the exchange persisted.
			if err := o.gate.ConsumeQuota(persistCtx, owner); err != nil {
				o.logger.Warn("consuming quota", "error", err)
			}

			if firstExchange {
				o.setTitle(persistCtx, turn, question)
			}

			ev.Message = msg
			sendTerminal(ctx, out, ev)
			return

		case EventError:
			// Partial output persists flagged incomplete, never as a
			// normal completed message. An empty partial persists nothing.
			if ev.FullText != "" {
				msg, err := o.store.Append(persistCtx, &session.Message{
					SessionID: turn.Session.ID,
					Role:      session.RoleAssistant,
					Content:   ev.FullText,
					Status:    session.StatusIncomplete,
					Citations: turn.Citations,
				})
				if err != nil {
					o.logger.Error("persisting incomplete message", "session_id", turn.Session.ID, "error", err)
				} else {
					ev.Message = msg
				}
			}
			sendTerminal(ctx, out, ev)
			return
		}
	}
}

// setTitle derives and records the session title from the first question.
func (o *Orchestrator) setTitle(ctx context.Context, turn *Turn, question string) {
	title, err := o.titler.Title(ctx, question)
	if err != nil || title == "" {
		title = provider.FallbackTitle(question)
	}
	if err := o.store.SetTitleIfUnset(ctx, turn.Session.ID, title); err != nil {
		o.logger.Warn("setting session title", "session_id", turn.Session.ID, "error", err)
		return
	}
	if turn.Session.Title == "" {
		turn.Session.Title = title
	}
}

func toCitations(matches []retrieval.Match) []session.Citation {
	if len(matches) == 0 {
		return nil
	}
	citations := make([]session.Citation, 0, len(matches))
	for _, m := range matches {
		citations = append(citations, session.Citation{
			SourceID: m.ID,
			Score:    m.Score,
			Excerpt:  truncateRunes(m.Text, excerptLen),
			Category: m.Category(),
		})
	}
	return citations
}

func toProviderMessages(msgs []*session.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
