package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/eloquentai/eloquent-chat/internal/provider"
)

// fakeGenerator emits configured deltas, then either errors or completes.
type fakeGenerator struct {
	deltas []string
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeGenerator) Stream(ctx context.Context, _ []provider.Message, onDelta provider.DeltaFunc) (string, error) {
	f.calls++
	var full strings.Builder
	for _, d := range f.deltas {
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return full.String(), ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return full.String(), err
			}
		}
		full.WriteString(d)
	}
	if f.err != nil {
		return full.String(), f.err
	}
	return full.String(), nil
}

func TestStreamController_OrderedDeltasThenDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{deltas: []string{"Hel", "lo ", "world"}}
	sc := NewStreamController(gen, nil)

	events := sc.Run(context.Background(), nil)

	var deltas []string
	var terminals int
	var final Event
	for ev := range events {
		switch ev.Type {
		case EventDelta:
			deltas = append(deltas, ev.Delta)
		default:
			terminals++
			final = ev
		}
	}

	if got := strings.Join(deltas, ""); got != "Hello world" {
		t.Errorf("deltas = %q, want emission order preserved", got)
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminals)
	}
	if final.Type != EventDone || final.FullText != "Hello world" {
		t.Errorf("terminal = %+v, want Done with full text", final)
	}
}

func TestStreamController_MidStreamError(t *testing.T) {
	defer goleak.VerifyNone(t)

	genErr := errors.New("provider connection reset")
	gen := &fakeGenerator{deltas: []string{"partial "}, err: genErr}
	sc := NewStreamController(gen, nil)

	var final Event
	for ev := range sc.Run(context.Background(), nil) {
		if ev.Type != EventDelta {
			final = ev
		}
	}

	if final.Type != EventError {
		t.Fatalf("terminal type = %v, want EventError", final.Type)
	}
	if !errors.Is(final.Err, genErr) {
		t.Errorf("terminal err = %v, want %v", final.Err, genErr)
	}
	if final.FullText != "partial " {
		t.Errorf("terminal FullText = %q, want the partial output", final.FullText)
	}
}

func TestStreamController_CancellationStopsProducer(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{
		deltas: []string{"a", "b", "c", "d", "e"},
		delay:  20 * time.Millisecond,
	}
	sc := NewStreamController(gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := sc.Run(ctx, nil)

	// Read one delta, then disconnect.
	<-events
	cancel()

	var final Event
	for ev := range events {
		if ev.Type != EventDelta {
			final = ev
		}
	}
	if final.Type != EventError || !errors.Is(final.Err, context.Canceled) {
		t.Fatalf("terminal = %+v, want EventError with context.Canceled", final)
	}
}
