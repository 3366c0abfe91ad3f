package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/logsentry/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS baseline_entries (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		vector BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_category ON baseline_entries(category);
	CREATE INDEX IF NOT EXISTS idx_entries_created_at ON baseline_entries(created_at);

	CREATE TABLE IF NOT EXISTS calibration_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		threshold REAL NOT NULL,
		quantile REAL NOT NULL,
		method TEXT NOT NULL,
		k INTEGER NOT NULL,
		sample_size INTEGER NOT NULL,
		sampled INTEGER NOT NULL,
		scored INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		filters TEXT,
		duration_ms INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS source_files (
		path TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL,
		lines INTEGER NOT NULL,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const entryColumns = `id, text, category, source, vector, created_at`

// PutEntries upserts entries in a single transaction. Entries without
// CreatedAt get the current time.
func (s *SQLiteStorage) PutEntries(ctx context.Context, entries []*models.BaselineEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO baseline_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   text = excluded.text,
		   category = excluded.category,
		   source = excluded.source,
		   vector = excluded.vector`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Text, e.Category, e.Source, float32ToBytes(e.Vector), e.CreatedAt); err != nil {
			return fmt.Errorf("failed to store entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// GetEntry returns an entry by ID.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*models.BaselineEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM baseline_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

// GetEntries returns the entries with the given IDs in the order requested.
// Unknown IDs are skipped.
func (s *SQLiteStorage) GetEntries(ctx context.Context, ids []string) ([]*models.BaselineEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM baseline_entries WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*models.BaselineEntry, len(ids))
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.BaselineEntry, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListEntries returns entries with offset and limit, newest first.
func (s *SQLiteStorage) ListEntries(ctx context.Context, offset, limit int) ([]*models.BaselineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM baseline_entries ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// AllEntries returns every stored entry ordered by ID.
func (s *SQLiteStorage) AllEntries(ctx context.Context) ([]*models.BaselineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM baseline_entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// DeleteEntry removes an entry by ID.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM baseline_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountEntries returns the total number of baseline entries.
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM baseline_entries`).Scan(&count)
	return count, err
}

// SaveCalibration inserts a calibration run and sets its ID.
func (s *SQLiteStorage) SaveCalibration(ctx context.Context, c *models.Calibration) error {
	filtersJSON, err := json.Marshal(c.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO calibration_runs
		 (threshold, quantile, method, k, sample_size, sampled, scored, skipped, seed, filters, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Threshold, c.Quantile, c.Method, c.K, c.SampleSize, c.Sampled, c.Scored, c.Skipped,
		c.Seed, string(filtersJSON), c.DurationMs, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// LatestCalibration returns the most recent calibration run.
func (s *SQLiteStorage) LatestCalibration(ctx context.Context) (*models.Calibration, error) {
	runs, err := s.ListCalibrations(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("calibration: %w", ErrNotFound)
	}
	return runs[0], nil
}

// ListCalibrations returns up to limit calibration runs, newest first.
func (s *SQLiteStorage) ListCalibrations(ctx context.Context, limit int) ([]*models.Calibration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, threshold, quantile, method, k, sample_size, sampled, scored, skipped, seed, filters, duration_ms, created_at
		 FROM calibration_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Calibration
	for rows.Next() {
		var c models.Calibration
		var filtersJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.Threshold, &c.Quantile, &c.Method, &c.K, &c.SampleSize,
			&c.Sampled, &c.Scored, &c.Skipped, &c.Seed, &filtersJSON, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, err
		}
		if filtersJSON.Valid && filtersJSON.String != "" {
			_ = json.Unmarshal([]byte(filtersJSON.String), &c.Filters)
		}
		runs = append(runs, &c)
	}
	return runs, rows.Err()
}

// GetSourceFile returns the recorded state of an ingested file.
func (s *SQLiteStorage) GetSourceFile(ctx context.Context, path string) (*models.SourceFile, error) {
	var f models.SourceFile
	err := s.db.QueryRowContext(ctx,
		`SELECT path, mtime, size, lines, ingested_at FROM source_files WHERE path = ?`, path,
	).Scan(&f.Path, &f.ModTime, &f.Size, &f.Lines, &f.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// PutSourceFile records or replaces the state of an ingested file.
func (s *SQLiteStorage) PutSourceFile(ctx context.Context, f *models.SourceFile) error {
	if f.IngestedAt.IsZero() {
		f.IngestedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_files (path, mtime, size, lines, ingested_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, size = excluded.size,
		   lines = excluded.lines, ingested_at = excluded.ingested_at`,
		f.Path, f.ModTime, f.Size, f.Lines, f.IngestedAt,
	)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(r rowScanner) (*models.BaselineEntry, error) {
	var e models.BaselineEntry
	var vec []byte
	if err := r.Scan(&e.ID, &e.Text, &e.Category, &e.Source, &vec, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Vector = bytesToFloat32Slice(vec)
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*models.BaselineEntry, error) {
	var out []*models.BaselineEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func float32ToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	const size = 4
	out := make([]byte, len(v)*size)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(x))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	if len(b) < size {
		return nil
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
