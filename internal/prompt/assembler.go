// Package prompt assembles the message list sent to the language model.
//
// Assembly is deterministic: identical inputs produce the identical message
// list. The shape is fixed as system prompt, then recent history oldest
// first, then the user question wrapped with the retrieved FAQ context.
// A token budget bounds the total; history is truncated before passages
// are dropped, and the question itself is never cut.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/eloquentai/eloquent-chat/internal/provider"
	"github.com/eloquentai/eloquent-chat/internal/retrieval"
)

// SystemPrompt instructs the model on its role and how to use FAQ context.
const SystemPrompt = `You are a helpful AI assistant for Eloquent, a fintech company.
You answer questions about account management, payments, security, regulations, and technical support.

Use the provided context from the FAQ knowledge base to answer questions accurately.
If the context doesn't contain relevant information, politely say you don't have that information
and suggest the user contact support.

Always be professional, clear, and concise in your responses.`

// noContextNotice is the context block content when retrieval found nothing
// or was unavailable.
const noContextNotice = "No relevant FAQ information found."

// defaultCategory labels passages whose document carries no category.
const defaultCategory = "General"

// fallbackEncoding is used when the model name is unknown to tiktoken.
const fallbackEncoding = "cl100k_base"

// Config tunes the assembler.
type Config struct {
	// Model selects the tokenizer. Unknown models fall back to cl100k_base.
	Model string

	// TokenBudget caps the total token count of the assembled messages.
	// Zero disables budget enforcement.
	TokenBudget int

	// HistoryTurns is the maximum number of history messages included.
	HistoryTurns int
}

// Assembler builds prompt message lists.
//
// Safe for concurrent use; the tokenizer is read-only after construction.
type Assembler struct {
	cfg     Config
	encoder *tiktoken.Tiktoken
}

// New creates an Assembler for the configured model.
func New(cfg Config) (*Assembler, error) {
	encoder, err := tiktoken.EncodingForModel(cfg.Model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("loading tokenizer: %w", err)
		}
	}
	return &Assembler{cfg: cfg, encoder: encoder}, nil
}

// Assemble builds the message list for one chat turn.
//
// matches must already be in rank order (best first); passages are numbered
// in that order. history must be in chronological order; only the most
// recent cfg.HistoryTurns messages are considered, and the token budget may
// truncate further, always dropping oldest first.
func (a *Assembler) Assemble(question string, matches []retrieval.Match, history []provider.Message) []provider.Message {
	if n := a.cfg.HistoryTurns; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	userContent := a.wrapQuestion(question, matches)

	if a.cfg.TokenBudget > 0 {
		fixed := a.CountTokens(SystemPrompt) + a.CountTokens(userContent)

		// Drop lowest-ranked passages until the fixed part fits.
		for fixed > a.cfg.TokenBudget && len(matches) > 0 {
			matches = matches[:len(matches)-1]
			userContent = a.wrapQuestion(question, matches)
			fixed = a.CountTokens(SystemPrompt) + a.CountTokens(userContent)
		}

		// Spend what remains on history, newest first.
		remaining := a.cfg.TokenBudget - fixed
		kept := 0
		for i := len(history) - 1; i >= 0; i-- {
			cost := a.CountTokens(history[i].Content)
			if cost > remaining {
				break
			}
			remaining -= cost
			kept++
		}
		history = history[len(history)-kept:]
	}

	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: SystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: userContent})
	return msgs
}

// CountTokens returns the token count of text under the configured encoding.
func (a *Assembler) CountTokens(text string) int {
	return len(a.encoder.Encode(text, nil, nil))
}

// wrapQuestion embeds the question and formatted context into the final
// user message.
func (a *Assembler) wrapQuestion(question string, matches []retrieval.Match) string {
	return fmt.Sprintf("Context from FAQ:\n%s\n\nUser Question: %s", FormatContext(matches), question)
}

// FormatContext renders retrieved passages as a numbered context block.
// Passage numbers follow rank order, so citation "Source 1" is always the
// best match.
func FormatContext(matches []retrieval.Match) string {
	if len(matches) == 0 {
		return noContextNotice
	}

	parts := make([]string, 0, len(matches))
	for i, m := range matches {
		category := m.Category()
		if category == "" {
			category = defaultCategory
		}
		parts = append(parts, fmt.Sprintf("[Source %d - %s]\n%s\n", i+1, category, m.Text))
	}
	return strings.Join(parts, "\n")
}
