package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eloquentai/eloquent-chat/internal/knowledge"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadSeedFile(t *testing.T) {
	path := writeSeedFile(t, `[
		{"id": "faq-1", "content": "Wires cost $25.", "category": "Fees", "source": "faq.md"},
		{"id": "faq-2", "content": "Cards ship in 5 days."}
	]`)

	docs, err := readSeedFile(path)
	if err != nil {
		t.Fatalf("readSeedFile: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[0].Metadata[knowledge.MetaCategory] != "Fees" {
		t.Errorf("category = %q", docs[0].Metadata[knowledge.MetaCategory])
	}
	if docs[0].Metadata[knowledge.MetaSource] != "faq.md" {
		t.Errorf("source = %q", docs[0].Metadata[knowledge.MetaSource])
	}
	if len(docs[1].Metadata) != 0 {
		t.Errorf("metadata = %v, want empty", docs[1].Metadata)
	}
}

func TestReadSeedFileRejectsMissingFields(t *testing.T) {
	path := writeSeedFile(t, `[{"id": "faq-1"}]`)

	if _, err := readSeedFile(path); err == nil {
		t.Fatal("expected error for missing content")
	}
}

func TestReadSeedFileRejectsEmpty(t *testing.T) {
	path := writeSeedFile(t, `[]`)

	if _, err := readSeedFile(path); err == nil {
		t.Fatal("expected error for empty seed file")
	}
}

func TestReadSeedFileRejectsBadJSON(t *testing.T) {
	path := writeSeedFile(t, `{not json`)

	if _, err := readSeedFile(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
