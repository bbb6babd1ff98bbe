package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eloquentai/eloquent-chat/internal/knowledge"
)

// seedDocument is one entry in a seed file.
type seedDocument struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

// runSeed embeds and indexes the FAQ documents in a JSON file:
//
//	[{"id": "faq-1", "content": "...", "category": "Fees", "source": "faq.md"}]
//
// Re-running with the same file is safe; documents upsert by id.
func runSeed(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: eloquent-chat seed <file.json>")
	}
	logger := initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	docs, err := readSeedFile(args[0])
	if err != nil {
		return err
	}

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	written, err := a.ingestor.AddBatch(ctx, docs)
	if err != nil {
		return fmt.Errorf("after %d documents: %w", written, err)
	}

	total, err := a.knowledge.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}
	logger.Info("knowledge base seeded", "written", written, "total", total)
	return nil
}

func readSeedFile(path string) ([]knowledge.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var entries []seedDocument
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("seed file %s contains no documents", path)
	}

	docs := make([]knowledge.Document, 0, len(entries))
	for n, e := range entries {
		if e.ID == "" || e.Content == "" {
			return nil, fmt.Errorf("document %d: id and content are required", n+1)
		}
		meta := map[string]string{}
		if e.Category != "" {
			meta[knowledge.MetaCategory] = e.Category
		}
		if e.Source != "" {
			meta[knowledge.MetaSource] = e.Source
		}
		docs = append(docs, knowledge.Document{ID: e.ID, Content: e.Content, Metadata: meta})
	}
	return docs, nil
}
