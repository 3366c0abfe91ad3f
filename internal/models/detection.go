package models

import (
	"fmt"
	"time"
)

// Score methods accepted in requests.
const (
	MethodKth = "kth"
	MethodAvg = "avg"
	MethodMax = "max"
)

// MaxK caps the neighbor count of detection and calibration requests.
const MaxK = 1000

// Verdict statuses.
const (
	StatusAnomalous        = "anomalous"
	StatusNormal           = "normal"
	StatusNoComparableData = "no_comparable_data"
)

// DetectRequest is the input of a single detection.
type DetectRequest struct {
	Text        string            `json:"text"`
	K           int               `json:"k,omitempty"`
	ScoreMethod string            `json:"score_method,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	PrintTop    int               `json:"top_n,omitempty"`
	// Threshold overrides the current threshold when set.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Validate checks the request and fills defaults for unset fields.
func (r *DetectRequest) Validate() error {
	if r.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if r.K < 0 {
		return fmt.Errorf("k must be positive, got %d", r.K)
	}
	if r.K == 0 {
		r.K = 5
	}
	if r.K > MaxK {
		r.K = MaxK
	}
	if r.ScoreMethod == "" {
		r.ScoreMethod = MethodKth
	}
	if r.PrintTop < 0 {
		r.PrintTop = 0
	}
	if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 2) {
		return fmt.Errorf("threshold must be within [0, 2], got %v", *r.Threshold)
	}
	return nil
}

// DetectionVerdict is the outcome of one detection.
type DetectionVerdict struct {
	Text            string         `json:"text"`
	Status          string         `json:"status"`
	Score           float64        `json:"score"`
	Threshold       float64        `json:"threshold"`
	ThresholdSource string         `json:"threshold_source,omitempty"`
	IsAnomalous     bool           `json:"is_anomalous"`
	Method          string         `json:"method"`
	K               int            `json:"k"`
	Neighbors       []*NeighborHit `json:"neighbors"`
	QueryTimeMs     int64          `json:"query_time_ms"`
	DetectedAt      time.Time      `json:"detected_at"`
}
