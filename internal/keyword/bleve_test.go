package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/logsentry/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	entries := []*models.BaselineEntry{
		{ID: "e1", Text: "User admin logged in successfully from IP 192.168.1.5 via SSH.", Category: "auth", Source: "auth.log"},
		{ID: "e2", Text: "Scheduled backup completed for database 'customers'.", Category: "ops", Source: "cron.log"},
		{ID: "e3", Text: "Process explorer.exe started by user alice.", Category: "endpoint", Source: "edr.log"},
		{ID: "e4", Text: "User alice logged out.", Category: "auth", Source: "auth.log"},
	}
	if err := idx.Index(context.Background(), entries); err != nil {
		t.Fatalf("Index: %v", err)
	}
	return idx
}

func resultIDs(results []*KeywordResult) map[string]bool {
	out := make(map[string]bool, len(results))
	for _, r := range results {
		out[r.ID] = true
	}
	return out
}

func TestBleveIndex_SearchFindsText(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	results, err := idx.Search(ctx, "backup", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "e2" {
		t.Fatalf("Search(backup) = %v, want [e2]", results)
	}

	// Standard analyzer lowercases without stemming.
	results, err = idx.Search(ctx, "ALICE", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := resultIDs(results)
	if len(results) != 2 || !got["e3"] || !got["e4"] {
		t.Errorf("Search(ALICE) = %v, want e3 and e4", results)
	}
}

func TestBleveIndex_SearchWithFilters(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Search(context.Background(), "alice", 10, &SearchOptions{Filters: map[string]string{"category": "auth"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "e4" {
		t.Errorf("filtered search = %v, want [e4]", results)
	}

	results, err = idx.Search(context.Background(), "user", 10, &SearchOptions{Filters: map[string]string{"source": "edr.log"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "e3" {
		t.Errorf("source filter = %v, want [e3]", results)
	}
}

func TestBleveIndex_FuzzySearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	results, err := idx.Search(ctx, "bakup", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("exact search should miss typo, got %v", results)
	}

	results, err = idx.Search(ctx, "bakup", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "e2" {
		t.Errorf("fuzzy search = %v, want [e2]", results)
	}
}

func TestBleveIndex_SearchPhrase(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	results, err := idx.SearchPhrase(ctx, "admin logged", 10)
	if err != nil {
		t.Fatalf("SearchPhrase: %v", err)
	}
	if len(results) != 1 || results[0].ID != "e1" {
		t.Errorf("SearchPhrase(admin logged) = %v, want [e1]", results)
	}

	results, err = idx.SearchPhrase(ctx, "logged admin", 10)
	if err != nil {
		t.Fatalf("SearchPhrase: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("out-of-order phrase should not match, got %v", results)
	}
}

func TestBleveIndex_DeleteAndCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	n, err := idx.DocCount()
	if err != nil || n != 4 {
		t.Fatalf("DocCount = %d, %v; want 4", n, err)
	}
	if err := idx.Delete(ctx, "e2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, _ = idx.DocCount()
	if n != 3 {
		t.Errorf("DocCount after delete = %d, want 3", n)
	}
	results, _ := idx.Search(ctx, "backup", 10, nil)
	if len(results) != 0 {
		t.Errorf("deleted entry still searchable: %v", results)
	}
}

func TestBleveIndex_ReopensExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(context.Background(), []*models.BaselineEntry{{ID: "x", Text: "persisted line"}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	results, err := reopened.Search(context.Background(), "persisted", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "x" {
		t.Errorf("reopened search = %v", results)
	}
}

func TestNewMemBleveIndex(t *testing.T) {
	idx, err := NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if err := idx.Index(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
	n, _ := idx.DocCount()
	if n != 0 {
		t.Errorf("DocCount = %d, want 0", n)
	}
}
