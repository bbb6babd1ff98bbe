// Package provider defines the AI provider boundary for eloquent-chat.
//
// The embedding and language models are external collaborators. This package
// exposes them as two narrow capabilities:
//
//   - [Embedder]: embed(text) -> vector
//   - [Generator]: generate(messages) -> token stream
//
// The OpenAI implementation lives in openai.go. Everything above this
// package depends only on the interfaces, so tests substitute fakes and the
// provider can be swapped without touching the chat pipeline.
package provider

import "context"

// Message roles understood by chat models.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single prompt message in provider-neutral form.
type Message struct {
	Role    string
	Content string
}

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DeltaFunc receives one streamed content delta. Returning an error stops
// the stream; the error propagates out of Stream.
type DeltaFunc func(delta string) error

// Generator drives the language model.
type Generator interface {
	// Stream generates a completion for msgs, invoking onDelta for each
	// content delta in emission order, and returns the full text.
	// onDelta may be nil for buffered generation.
	//
	// The call honors ctx: cancellation stops requesting further tokens
	// from the model promptly.
	Stream(ctx context.Context, msgs []Message, onDelta DeltaFunc) (string, error)
}

// Titler produces a short conversation title from the first user message.
// Kept separate from Generator because implementations typically use a
// smaller, faster model.
type Titler interface {
	Title(ctx context.Context, firstMessage string) (string, error)
}
