package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/logsentry/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_EntryCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	entries := []*models.BaselineEntry{
		{ID: "e1", Text: "User admin logged in", Category: "auth", Source: "auth.log", Vector: []float32{0.6, 0.8}},
		{ID: "e2", Text: "Backup completed", Category: "ops", Vector: []float32{1, 0}},
	}
	if err := store.PutEntries(ctx, entries); err != nil {
		t.Fatal(err)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetEntry(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "User admin logged in" || got.Category != "auth" || got.Source != "auth.log" {
		t.Errorf("got %+v", got)
	}
	if len(got.Vector) != 2 || got.Vector[0] != 0.6 || got.Vector[1] != 0.8 {
		t.Errorf("vector round trip: got %v", got.Vector)
	}

	n, err := store.CountEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}

	// Upsert replaces text and vector.
	if err := store.PutEntries(ctx, []*models.BaselineEntry{{ID: "e1", Text: "changed", Vector: []float32{0, 1}}}); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetEntry(ctx, "e1")
	if got.Text != "changed" || got.Vector[1] != 1 {
		t.Errorf("upsert not applied: %+v", got)
	}
	if n, _ := store.CountEntries(ctx); n != 2 {
		t.Errorf("upsert should not add rows, got %d", n)
	}

	if err := store.DeleteEntry(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEntry(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteEntry(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_ListAndBatchGet(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var entries []*models.BaselineEntry
	for i, id := range []string{"c", "a", "b"} {
		entries = append(entries, &models.BaselineEntry{ID: id, Text: "line " + id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	if err := store.PutEntries(ctx, entries); err != nil {
		t.Fatal(err)
	}

	all, err := store.AllEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Errorf("AllEntries should be ordered by id, got %v", ids(all))
	}
	if all[0].Vector != nil {
		t.Errorf("entry stored without vector should load nil vector, got %v", all[0].Vector)
	}

	page, err := store.ListEntries(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "b" {
		t.Errorf("ListEntries newest first: got %v", ids(page))
	}

	got, err := store.GetEntries(ctx, []string{"b", "missing", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("GetEntries should keep request order and skip unknown: got %v", ids(got))
	}

	none, err := store.GetEntries(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("GetEntries(nil) = %v, %v", none, err)
	}
}

func TestSQLiteStorage_Calibrations(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.LatestCalibration(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty table, got %v", err)
	}

	first := &models.Calibration{Threshold: 0.2, Quantile: 0.95, Method: "kth", K: 5, SampleSize: 200, Sampled: 8, Scored: 8, Seed: 42}
	second := &models.Calibration{Threshold: 0.3, Quantile: 0.9, Method: "avg", K: 3, SampleSize: 50, Sampled: 50, Scored: 48, Skipped: 2,
		Seed: 7, Filters: map[string]string{"category": "auth"}, DurationMs: 12}
	for _, c := range []*models.Calibration{first, second} {
		if err := store.SaveCalibration(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Errorf("ids not assigned in order: %d, %d", first.ID, second.ID)
	}

	latest, err := store.LatestCalibration(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != second.ID || latest.Threshold != 0.3 || latest.Method != "avg" || latest.Skipped != 2 {
		t.Errorf("latest = %+v", latest)
	}
	if latest.Filters["category"] != "auth" {
		t.Errorf("filters not restored: %v", latest.Filters)
	}

	runs, err := store.ListCalibrations(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[1].ID != first.ID {
		t.Errorf("ListCalibrations = %d runs", len(runs))
	}
}

func ids(entries []*models.BaselineEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestSQLiteStorage_SourceFiles(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.GetSourceFile(ctx, "/var/log/auth.log"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	f := &models.SourceFile{Path: "/var/log/auth.log", ModTime: 1700000000123456789, Size: 2048, Lines: 12}
	if err := store.PutSourceFile(ctx, f); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetSourceFile(ctx, f.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ModTime != f.ModTime || got.Size != 2048 || got.Lines != 12 {
		t.Errorf("got %+v", got)
	}

	f.Size = 4096
	if err := store.PutSourceFile(ctx, f); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetSourceFile(ctx, f.Path)
	if got.Size != 4096 {
		t.Errorf("update not applied: %+v", got)
	}
}
