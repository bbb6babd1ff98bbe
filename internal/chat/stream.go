// Package chat composes retrieval, prompt assembly, generation, and
// persistence into one chat turn. The orchestrator is the only entry point
// the HTTP surface talks to.
package chat

import (
	"context"

	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/provider"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

// streamBuffer bounds the event channel. The producer blocks once the
// consumer falls this far behind, which also bounds memory per request.
const streamBuffer = 32

// EventType discriminates stream events.
type EventType int

const (
	// EventDelta carries one content fragment.
	EventDelta EventType = iota
	// EventDone is the successful terminal event.
	EventDone
	// EventError is the failure terminal event.
	EventError
)

// Event is one item on a generation stream. Exactly one terminal event
// (Done or Error) arrives per stream, always last, after which the channel
// closes.
type Event struct {
	Type  EventType
	Delta string // EventDelta only

	// Terminal fields.
	FullText string           // accumulated text, possibly partial on error
	Message  *session.Message // persisted assistant message, when one exists
	Err      error            // EventError only
}

// StreamController drives one generation call and relays its output as an
// ordered event stream. Single producer, single consumer; events arrive in
// emission order with no reordering.
type StreamController struct {
	gen    provider.Generator
	logger log.Logger
}

// NewStreamController creates a StreamController.
func NewStreamController(gen provider.Generator, logger log.Logger) *StreamController {
	if logger == nil {
		logger = log.NewNop()
	}
	return &StreamController{gen: gen, logger: logger}
}

// Run starts generation and returns the event channel. Cancelling ctx stops
// requesting tokens from the provider promptly; whatever was produced so
// far arrives in the terminal error event's FullText.
func (c *StreamController) Run(ctx context.Context, msgs []provider.Message) <-chan Event {
	events := make(chan Event, streamBuffer)

	go func() {
		defer close(events)

		full, err := c.gen.Stream(ctx, msgs, func(delta string) error {
			select {
			case events <- Event{Type: EventDelta, Delta: delta}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			c.logger.Debug("generation stream ended with error", "error", err, "partial_length", len(full))
			sendTerminal(ctx, events, Event{Type: EventError, FullText: full, Err: err})
			return
		}
		sendTerminal(ctx, events, Event{Type: EventDone, FullText: full})
	}()

	return events
}

// sendTerminal delivers the terminal event without blocking forever on a
// consumer that stopped reading after cancellation.
func sendTerminal(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
		select {
		case events <- ev:
		default:
		}
	}
}
