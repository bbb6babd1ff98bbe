package knowledge

import "time"

// Metadata keys commonly attached to documents.
const (
	// MetaCategory labels the topic area of a document, e.g. "Account & Registration".
	MetaCategory = "category"

	// MetaSource records where the document text came from.
	MetaSource = "source"
)

// Document is a single knowledge base entry.
type Document struct {
	ID        string            // Unique identifier
	Content   string            // Document text content
	Metadata  map[string]string // Optional metadata (category, source, etc.)
	Embedding []float32         // Content embedding vector
	CreatedAt time.Time         // Creation timestamp
}

// Category returns the document's category label, or "" when unset.
func (d Document) Category() string {
	return d.Metadata[MetaCategory]
}

// Result is a single vector search hit with its similarity score.
type Result struct {
	Document   Document
	Similarity float32 // Cosine similarity score (0-1)
}
