// Package retrieval turns a user question into ranked knowledge passages.
//
// The retriever embeds the query, runs cosine similarity search against the
// knowledge base, and returns matches above the similarity threshold. Any
// failure along that path is reported as [ErrUnavailable] so callers can
// degrade to generation without sources instead of failing the chat turn.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/eloquentai/eloquent-chat/internal/knowledge"
	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/provider"
)

// ErrUnavailable reports that retrieval could not run, either because the
// embedding call or the vector search failed. A query that simply matches
// nothing does NOT produce this error.
var ErrUnavailable = errors.New("retrieval unavailable")

// Match is one retrieved passage with its similarity score.
type Match struct {
	ID       string            // Knowledge base document ID
	Score    float32           // Cosine similarity (0-1)
	Text     string            // Passage content
	Metadata map[string]string // Document metadata (category, source)
}

// Category returns the match's category label, or "" when unset.
func (m Match) Category() string {
	return m.Metadata[knowledge.MetaCategory]
}

// Searcher is the vector search surface the retriever needs.
// *knowledge.Store satisfies it.
type Searcher interface {
	SearchByVector(ctx context.Context, query []float32, topK int, minSimilarity float32) ([]knowledge.Result, error)
}

// Retriever embeds queries and searches the knowledge base.
//
// Safe for concurrent use.
type Retriever struct {
	embedder provider.Embedder
	searcher Searcher
	logger   log.Logger
}

// New creates a Retriever.
func New(embedder provider.Embedder, searcher Searcher, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{embedder: embedder, searcher: searcher, logger: logger}
}

// Retrieve returns up to topK passages whose similarity to query is at least
// minSimilarity, best match first. An empty slice means no relevant
// knowledge exists for the query; that is a valid outcome, not an error.
//
// Infrastructure failures are wrapped in [ErrUnavailable].
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minSimilarity float32) ([]Match, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed", "error", err)
		return nil, fmt.Errorf("%w: embedding query: %w", ErrUnavailable, err)
	}

	results, err := r.searcher.SearchByVector(ctx, embedding, topK, minSimilarity)
	if err != nil {
		r.logger.Warn("vector search failed", "error", err)
		return nil, fmt.Errorf("%w: searching knowledge base: %w", ErrUnavailable, err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, Match{
			ID:       res.Document.ID,
			Score:    res.Similarity,
			Text:     res.Document.Content,
			Metadata: res.Document.Metadata,
		})
	}

	r.logger.Debug("retrieved passages",
		"query_length", len(query),
		"matches", len(matches),
		"top_k", topK,
		"min_similarity", minSimilarity,
	)
	return matches, nil
}
