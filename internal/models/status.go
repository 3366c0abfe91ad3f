package models

// Status summarizes the baseline, the similarity index and the active threshold.
type Status struct {
	Entries       int64          `json:"entries"`
	IndexType     string         `json:"index_type"`
	IndexCount    int            `json:"index_count"`
	KeywordDocs   uint64         `json:"keyword_docs"`
	Threshold     Threshold      `json:"threshold"`
	Rules         int            `json:"rules"`
	RulesPath     string         `json:"rules_path,omitempty"`
	WatchDirs     []string       `json:"watch_directories,omitempty"`
	Calibrations  []*Calibration `json:"recent_calibrations,omitempty"`
	EmbeddingDims int            `json:"embedding_dimensions"`
	DiskUsage     int64          `json:"disk_usage_bytes,omitempty"`
}
