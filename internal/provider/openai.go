package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eloquentai/eloquent-chat/internal/log"
)

// titleMaxTokens caps the title completion; six words fit comfortably.
const titleMaxTokens = 20

// titleFallbackLen is how much of the first message becomes the title when
// the title model is unavailable.
const titleFallbackLen = 50

// titleSystemPrompt instructs the fast model to produce a session title.
const titleSystemPrompt = "Generate a short, concise title (max 6 words) for a chat conversation based on the user's first message."

// OpenAIConfig configures the OpenAI provider client.
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string  // e.g. "gpt-4o"
	TitleModel     string  // smaller model for title generation, e.g. "gpt-4o-mini"
	EmbeddingModel string  // e.g. "text-embedding-3-small"
	Temperature    float32 // sampling temperature for chat completions
	MaxTokens      int     // completion token cap
	Retry          RetryConfig
}

// OpenAI implements [Embedder], [Generator], and [Titler] against the
// OpenAI API. Safe for concurrent use.
type OpenAI struct {
	client         *openai.Client
	chatModel      string
	titleModel     string
	embeddingModel string
	temperature    float32
	maxTokens      int
	retry          RetryConfig
	logger         log.Logger
}

// NewOpenAI creates an OpenAI provider client.
func NewOpenAI(cfg OpenAIConfig, logger log.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialInterval == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &OpenAI{
		client:         openai.NewClient(cfg.APIKey),
		chatModel:      cfg.ChatModel,
		titleModel:     cfg.TitleModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		retry:          cfg.Retry,
		logger:         logger,
	}, nil
}

// Embed returns the embedding vector for a single text.
// Transient failures get a bounded retry; no partial output exists yet.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := withRetry(ctx, o.retry, o.logger, "create embeddings", func() (openai.EmbeddingResponse, error) {
		return o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(o.embeddingModel),
		})
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding returned for text of length %d", len(text))
	}

	return resp.Data[0].Embedding, nil
}

// Stream generates a completion for msgs, invoking onDelta per content delta.
//
// The stream handshake gets the bounded retry; once the first delta has been
// received, any failure is returned as-is with no retry, so the caller can
// surface it as a terminal stream error.
func (o *OpenAI) Stream(ctx context.Context, msgs []Message, onDelta DeltaFunc) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.chatModel,
		Messages:    toOpenAIMessages(msgs),
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}

	stream, err := withRetry(ctx, o.retry, o.logger, "create chat stream", func() (*openai.ChatCompletionStream, error) {
		return o.client.CreateChatCompletionStream(ctx, req)
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			o.logger.Debug("closing completion stream", "error", closeErr)
		}
	}()

	var full strings.Builder
	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			// Mid-stream failure: no silent retry once output has begun.
			return full.String(), fmt.Errorf("receiving completion delta: %w", recvErr)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		if onDelta != nil {
			if cbErr := onDelta(delta); cbErr != nil {
				return full.String(), cbErr
			}
		}
	}

	return full.String(), nil
}

// Title generates a concise session title from the first user message using
// the fast title model. Falls back to a truncation of the message itself if
// the model call fails; a session always gets a title.
func (o *OpenAI) Title(ctx context.Context, firstMessage string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.titleModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: firstMessage},
		},
		MaxTokens:   titleMaxTokens,
		Temperature: 0.7,
	})
	if err != nil || len(resp.Choices) == 0 {
		o.logger.Debug("title generation failed, using fallback", "error", err)
		return FallbackTitle(firstMessage), nil
	}

	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	if title == "" {
		return FallbackTitle(firstMessage), nil
	}
	return title, nil
}

// FallbackTitle derives a title from the first message by truncation.
func FallbackTitle(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= titleFallbackLen {
		return firstMessage
	}
	return string(runes[:titleFallbackLen]) + "..."
}

// toOpenAIMessages converts provider-neutral messages to the SDK type.
func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out
}
