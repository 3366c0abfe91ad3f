package models

import "time"

// SourceFile records the state of an ingested file so unchanged files can be skipped.
type SourceFile struct {
	Path       string    `json:"path" db:"path"`
	ModTime    int64     `json:"mtime" db:"mtime"`
	Size       int64     `json:"size" db:"size"`
	Lines      int       `json:"lines" db:"lines"`
	IngestedAt time.Time `json:"ingested_at" db:"ingested_at"`
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	RunID    string   `json:"run_id"`
	Files    int      `json:"files"`
	Skipped  int      `json:"skipped_files"`
	Entries  int      `json:"entries"`
	EntryIDs []string `json:"entry_ids,omitempty"`
}
