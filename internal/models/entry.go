// Package models defines core data structures for baseline entries, detections and calibrations.
package models

import "time"

// BaselineEntry is one previously observed, presumed-normal log line with its embedding.
type BaselineEntry struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Category  string    `json:"category,omitempty" db:"category"`
	Source    string    `json:"source,omitempty" db:"source"`
	Vector    []float32 `json:"-" db:"vector"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Field returns the value of a filterable field, or "" when the entry has no such field.
func (e *BaselineEntry) Field(name string) string {
	switch name {
	case "category":
		return e.Category
	case "source":
		return e.Source
	case "id":
		return e.ID
	}
	return ""
}

// EntryInput is the input for adding a baseline entry.
type EntryInput struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

// NeighborHit is one result of a similarity query. Similarity is cosine-like: higher means closer.
type NeighborHit struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Text       string  `json:"text,omitempty"`
	Category   string  `json:"category,omitempty"`
}
