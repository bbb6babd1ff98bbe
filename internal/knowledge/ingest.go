package knowledge

import (
	"context"
	"fmt"

	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/provider"
)

// Storer is the persistence surface Ingestor needs. *Store satisfies it.
type Storer interface {
	Upsert(ctx context.Context, doc Document) error
}

// Ingestor embeds raw document text and writes it to the knowledge base.
// Used by the seed command to load FAQ content.
type Ingestor struct {
	store    Storer
	embedder provider.Embedder
	logger   log.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(store Storer, embedder provider.Embedder, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{store: store, embedder: embedder, logger: logger}
}

// Add embeds doc.Content and upserts the document. Any embedding already
// present on doc is replaced.
func (i *Ingestor) Add(ctx context.Context, doc Document) error {
	embedding, err := i.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}
	doc.Embedding = embedding

	if err := i.store.Upsert(ctx, doc); err != nil {
		return err
	}

	i.logger.Debug("ingested document", "id", doc.ID, "category", doc.Category())
	return nil
}

// AddBatch ingests docs one at a time, stopping at the first failure and
// reporting how many documents were written before it.
func (i *Ingestor) AddBatch(ctx context.Context, docs []Document) (int, error) {
	for n, doc := range docs {
		if err := i.Add(ctx, doc); err != nil {
			return n, fmt.Errorf("ingesting document %d of %d: %w", n+1, len(docs), err)
		}
	}
	return len(docs), nil
}
