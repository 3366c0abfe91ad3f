package search

import (
	"testing"

	"github.com/hyperjump/logsentry/internal/keyword"
	"github.com/hyperjump/logsentry/internal/models"
)

func TestNormalizeKeywordScores(t *testing.T) {
	results := []*keyword.KeywordResult{
		{ID: "a", Score: 2},
		{ID: "b", Score: 4},
		{ID: "c", Score: 1},
	}
	m := NormalizeKeywordScores(results)
	if m["b"] != 1.0 {
		t.Errorf("max score should be 1.0, got %f", m["b"])
	}
	if m["a"] != 0.5 {
		t.Errorf("a should be 0.5, got %f", m["a"])
	}
	if len(m) != 3 {
		t.Errorf("expected 3 entries, got %d", len(m))
	}
	if len(NormalizeKeywordScores(nil)) != 0 {
		t.Error("nil results should give an empty map")
	}
}

func TestNormalizeSemanticScores(t *testing.T) {
	hits := []*models.NeighborHit{
		{ID: "e1", Similarity: 0.9},
		{ID: "e2", Similarity: 0.5},
		{ID: "e3", Similarity: -0.2},
	}
	m := NormalizeSemanticScores(hits)
	if m["e1"] != 0.9 || m["e2"] != 0.5 {
		t.Errorf("unexpected map %v", m)
	}
	if m["e3"] != 0 {
		t.Errorf("negative similarity should clamp to 0, got %f", m["e3"])
	}
}

func TestFuse(t *testing.T) {
	kw := map[string]float64{"d1": 1.0, "d2": 0.5}
	sem := map[string]float64{"d1": 0.5, "d2": 1.0, "d3": 0.2}
	results := Fuse(kw, sem, 0.75, 0.25)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].EntryID != "d1" || results[2].EntryID != "d3" {
		t.Errorf("unexpected order: %s %s %s", results[0].EntryID, results[1].EntryID, results[2].EntryID)
	}
	if results[0].Score != 0.875 {
		t.Errorf("d1 score: got %f, want 0.875", results[0].Score)
	}
}

func TestFuse_tiesOrderedByID(t *testing.T) {
	results := Fuse(map[string]float64{"b": 1, "a": 1}, nil, 1, 0)
	if results[0].EntryID != "a" || results[1].EntryID != "b" {
		t.Errorf("ties should order by id, got %s %s", results[0].EntryID, results[1].EntryID)
	}
}
