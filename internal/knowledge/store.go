// Package knowledge stores and searches the knowledge base backing retrieval.
//
// Documents live in PostgreSQL with pgvector embeddings. [Store] is the pure
// storage layer: it persists documents with precomputed embeddings and runs
// cosine similarity search over them. [Ingestor] sits on top and embeds raw
// text before storing it. Query-time embedding belongs to the retrieval
// package, not here.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/eloquentai/eloquent-chat/internal/log"
)

// searchTimeout bounds vector search queries so a slow HNSW scan cannot
// block a chat turn indefinitely.
const searchTimeout = 10 * time.Second

// Querier is the database surface Store needs. *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages knowledge documents with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a Store on the given database handle.
func NewStore(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

const upsertDocumentSQL = `
INSERT INTO kb_documents (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata`

// Upsert inserts or replaces a document. The document must carry its
// embedding; use [Ingestor.Add] for raw text.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %q has no embedding", doc.ID)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	embedding := pgvector.NewVector(doc.Embedding)
	createdAt := pgtype.Timestamptz{Time: doc.CreatedAt, Valid: !doc.CreatedAt.IsZero()}

	if _, err := s.db.Exec(ctx, upsertDocumentSQL, doc.ID, doc.Content, embedding, metadataJSON, createdAt); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("upserted document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

const searchDocumentsSQL = `
SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
FROM kb_documents
WHERE 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1
LIMIT $3`

// SearchByVector returns up to topK documents whose cosine similarity to the
// query vector is at least minSimilarity, best match first. An empty result
// is not an error.
func (s *Store) SearchByVector(ctx context.Context, query []float32, topK int, minSimilarity float32) ([]Result, error) {
	if len(query) == 0 {
		return nil, errors.New("query vector is empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx, searchDocumentsSQL, pgvector.NewVector(query), minSimilarity, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			doc          Document
			metadataJSON []byte
			createdAt    pgtype.Timestamptz
			similarity   float32
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &createdAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				s.logger.Warn("unparseable document metadata", "document_id", doc.ID, "error", err)
				doc.Metadata = nil
			}
		}
		if createdAt.Valid {
			doc.CreatedAt = createdAt.Time
		}

		results = append(results, Result{Document: doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	return results, nil
}

// Count returns the total number of documents in the knowledge base.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM kb_documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kb_documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}
