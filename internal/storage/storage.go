// Package storage defines the persistence interface for baseline entries and calibration runs.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/logsentry/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines baseline entry and calibration persistence operations.
type Storage interface {
	// Baseline entries
	PutEntries(ctx context.Context, entries []*models.BaselineEntry) error
	GetEntry(ctx context.Context, id string) (*models.BaselineEntry, error)
	GetEntries(ctx context.Context, ids []string) ([]*models.BaselineEntry, error)
	ListEntries(ctx context.Context, offset, limit int) ([]*models.BaselineEntry, error)
	AllEntries(ctx context.Context) ([]*models.BaselineEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	CountEntries(ctx context.Context) (int64, error)

	// Calibration runs
	SaveCalibration(ctx context.Context, c *models.Calibration) error
	LatestCalibration(ctx context.Context) (*models.Calibration, error)
	ListCalibrations(ctx context.Context, limit int) ([]*models.Calibration, error)

	// Ingested source files
	GetSourceFile(ctx context.Context, path string) (*models.SourceFile, error)
	PutSourceFile(ctx context.Context, f *models.SourceFile) error

	Close() error
}
