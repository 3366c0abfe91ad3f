package detector

import (
	"sync"
	"time"

	"github.com/hyperjump/logsentry/internal/metrics"
	"github.com/hyperjump/logsentry/internal/models"
)

// ThresholdStore holds the active threshold. Readers receive copies, so a concurrent
// recalibration never changes a value a detection is already using.
type ThresholdStore struct {
	mu      sync.RWMutex
	current models.Threshold
}

// NewThresholdStore creates a store holding the fallback constant.
func NewThresholdStore(fallback float64) *ThresholdStore {
	s := &ThresholdStore{}
	s.Set(models.Threshold{Value: fallback, Source: models.ThresholdFallback})
	return s
}

// Get returns a copy of the active threshold.
func (s *ThresholdStore) Get() models.Threshold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.current
	if t.Run != nil {
		run := *t.Run
		t.Run = &run
	}
	return t
}

// Set replaces the active threshold.
func (s *ThresholdStore) Set(t models.Threshold) {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	metrics.SetThreshold(t.Value, t.Source)
}

// Apply makes a fresh calibration result the active threshold.
func (s *ThresholdStore) Apply(c *models.Calibration) {
	s.applyAs(c, models.ThresholdCalibrated)
}

// Restore makes a previously persisted calibration the active threshold.
func (s *ThresholdStore) Restore(c *models.Calibration) {
	s.applyAs(c, models.ThresholdStored)
}

func (s *ThresholdStore) applyAs(c *models.Calibration, source string) {
	run := *c
	run.Scores = nil
	s.Set(models.Threshold{Value: c.Threshold, Source: source, Run: &run})
}
