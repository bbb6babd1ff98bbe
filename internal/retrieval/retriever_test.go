package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/eloquentai/eloquent-chat/internal/knowledge"
)

type fakeEmbedder struct {
	embedding []float32
	err       error
	lastText  string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

type fakeSearcher struct {
	results      []knowledge.Result
	err          error
	lastTopK     int
	lastMinScore float32
	lastQuery    []float32
}

func (f *fakeSearcher) SearchByVector(_ context.Context, query []float32, topK int, minSimilarity float32) ([]knowledge.Result, error) {
	f.lastQuery = query
	f.lastTopK = topK
	f.lastMinScore = minSimilarity
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestRetriever_Retrieve(t *testing.T) {
	embedder := &fakeEmbedder{embedding: []float32{0.1, 0.2}}
	searcher := &fakeSearcher{
		results: []knowledge.Result{
			{
				Document: knowledge.Document{
					ID:       "faq-1",
					Content:  "Reset your password from the login page.",
					Metadata: map[string]string{knowledge.MetaCategory: "Account & Registration"},
				},
				Similarity: 0.91,
			},
			{
				Document:   knowledge.Document{ID: "faq-2", Content: "Contact support for locked accounts."},
				Similarity: 0.82,
			},
		},
	}

	r := New(embedder, searcher, nil)
	matches, err := r.Retrieve(context.Background(), "how do I reset my password", 3, 0.75)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if embedder.lastText != "how do I reset my password" {
		t.Errorf("embedded text = %q", embedder.lastText)
	}
	if searcher.lastTopK != 3 || searcher.lastMinScore != 0.75 {
		t.Errorf("search params = (%d, %v), want (3, 0.75)", searcher.lastTopK, searcher.lastMinScore)
	}

	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "faq-1" || matches[0].Score != 0.91 {
		t.Errorf("match[0] = %+v", matches[0])
	}
	if matches[0].Category() != "Account & Registration" {
		t.Errorf("match[0] category = %q", matches[0].Category())
	}
	if matches[1].Category() != "" {
		t.Errorf("match[1] category = %q, want empty", matches[1].Category())
	}
}

func TestRetriever_Retrieve_NoMatchesIsNotAnError(t *testing.T) {
	r := New(&fakeEmbedder{embedding: []float32{0.1}}, &fakeSearcher{}, nil)

	matches, err := r.Retrieve(context.Background(), "completely unrelated question", 3, 0.75)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0", len(matches))
	}
}

func TestRetriever_Retrieve_EmbedFailureIsUnavailable(t *testing.T) {
	embedErr := errors.New("rate limit exceeded")
	r := New(&fakeEmbedder{err: embedErr}, &fakeSearcher{}, nil)

	_, err := r.Retrieve(context.Background(), "question", 3, 0.75)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Retrieve() error = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, embedErr) {
		t.Errorf("Retrieve() error = %v, want wrapped cause", err)
	}
}

func TestRetriever_Retrieve_SearchFailureIsUnavailable(t *testing.T) {
	searchErr := errors.New("connection refused")
	r := New(&fakeEmbedder{embedding: []float32{0.1}}, &fakeSearcher{err: searchErr}, nil)

	_, err := r.Retrieve(context.Background(), "question", 3, 0.75)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Retrieve() error = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, searchErr) {
		t.Errorf("Retrieve() error = %v, want wrapped cause", err)
	}
}
