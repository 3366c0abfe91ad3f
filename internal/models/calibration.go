package models

import "time"

// Threshold sources.
const (
	ThresholdCalibrated = "calibrated"
	ThresholdStored     = "stored"
	ThresholdFallback   = "fallback"
	ThresholdOverride   = "override"
)

// Threshold is the decision boundary currently used by detection.
type Threshold struct {
	Value     float64      `json:"value"`
	Source    string       `json:"source"`
	UpdatedAt time.Time    `json:"updated_at"`
	Run       *Calibration `json:"calibration,omitempty"`
}

// CalibrationRequest carries optional overrides for a calibration run.
type CalibrationRequest struct {
	SampleSize  int               `json:"sample_size,omitempty"`
	K           int               `json:"k,omitempty"`
	Quantile    *float64          `json:"quantile,omitempty"`
	ScoreMethod string            `json:"score_method,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	Seed        *int64            `json:"seed,omitempty"`
	// Apply replaces the active threshold on success; defaults to true.
	Apply *bool `json:"apply,omitempty"`
}

// Calibration records one successful calibration run.
type Calibration struct {
	ID         int64             `json:"id,omitempty" db:"id"`
	Threshold  float64           `json:"threshold" db:"threshold"`
	Quantile   float64           `json:"quantile" db:"quantile"`
	Method     string            `json:"method" db:"method"`
	K          int               `json:"k" db:"k"`
	SampleSize int               `json:"sample_size" db:"sample_size"`
	Sampled    int               `json:"sampled" db:"sampled"`
	Scored     int               `json:"scored" db:"scored"`
	Skipped    int               `json:"skipped" db:"skipped"`
	Seed       int64             `json:"seed" db:"seed"`
	Filters    map[string]string `json:"filters,omitempty" db:"filters"`
	Scores     []float64         `json:"-" db:"-"`
	DurationMs int64             `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
