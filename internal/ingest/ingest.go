// Package ingest adds presumed-normal log lines to the baseline: storage, vector index and keyword index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/embedding"
	"github.com/hyperjump/logsentry/internal/entryid"
	"github.com/hyperjump/logsentry/internal/extract"
	"github.com/hyperjump/logsentry/internal/keyword"
	"github.com/hyperjump/logsentry/internal/metrics"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/storage"
	"github.com/hyperjump/logsentry/internal/vector"
)

const defaultBatchSize = 64

// ErrEmptyText is returned for entry inputs whose text is blank after preprocessing.
var ErrEmptyText = errors.New("text cannot be empty")

// Ingester writes baseline entries to storage, the vector index and the keyword index.
type Ingester struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.KeywordIndex
	extractor    *extract.Extractor
	batchSize    int
	category     string
	logger       *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for debug output (file ingested, entry deleted, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// WithBatchSize sets how many lines are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.batchSize = n
		}
	}
}

// WithCategory sets the category recorded for lines ingested from files.
func WithCategory(c string) Option {
	return func(in *Ingester) { in.category = c }
}

// NewIngester creates an ingester. keywordIndex may be nil, in which case
// entries are not keyword-searchable. extractor may be nil; files are then read as plain text.
func NewIngester(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.KeywordIndex,
	extractor *extract.Extractor,
	opts ...Option,
) *Ingester {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	in := &Ingester{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		extractor:    extractor,
		batchSize:    defaultBatchSize,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// IngestEntries embeds and stores inputs. Inputs with blank text are rejected.
// Missing IDs are derived from source and text when a source is set, otherwise random.
func (in *Ingester) IngestEntries(ctx context.Context, inputs []models.EntryInput) (*models.IngestReport, error) {
	report := &models.IngestReport{RunID: uuid.NewString()}
	entries := make([]*models.BaselineEntry, 0, len(inputs))
	for i, input := range inputs {
		text := Preprocess(input.Text)
		if text == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyText)
		}
		id := input.ID
		switch {
		case id != "":
		case input.Source != "":
			id = entryid.FromText(input.Source, text)
		default:
			id = uuid.NewString()
		}
		entries = append(entries, &models.BaselineEntry{
			ID:       id,
			Text:     text,
			Category: input.Category,
			Source:   input.Source,
		})
	}

	for start := 0; start < len(entries); start += in.batchSize {
		end := start + in.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := in.writeBatch(ctx, entries[start:end]); err != nil {
			return nil, err
		}
	}

	report.Entries = len(entries)
	report.EntryIDs = make([]string, len(entries))
	for i, e := range entries {
		report.EntryIDs[i] = e.ID
	}
	metrics.BaselineEntriesIngested.Add(float64(len(entries)))
	in.logger.Debug("ingested baseline entries", zap.String("run_id", report.RunID), zap.Int("entries", len(entries)))
	return report, nil
}

func (in *Ingester) writeBatch(ctx context.Context, batch []*models.BaselineEntry) error {
	texts := make([]string, len(batch))
	for i, e := range batch {
		texts[i] = e.Text
	}
	vecs, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
	}
	for i := range batch {
		batch[i].Vector = vecs[i]
	}
	if err := in.storage.PutEntries(ctx, batch); err != nil {
		return fmt.Errorf("failed to store entries: %w", err)
	}
	if err := in.vectorIndex.Add(ctx, batch); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	if in.keywordIndex != nil {
		if err := in.keywordIndex.Index(ctx, batch); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	return nil
}

// IngestFile extracts lines from path and ingests each non-blank line. Entry IDs are
// derived from the absolute path and line text, so re-ingesting a changed file only
// adds new lines. If allowedExts is non-empty, the file's extension must be listed
// (case-insensitive). A file already ingested with the same mtime and size is skipped.
func (in *Ingester) IngestFile(ctx context.Context, path string, allowedExts []string) (*models.IngestReport, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	if in.unchanged(ctx, absPath, info) {
		in.logger.Debug("ingest skipping unchanged file", zap.String("path", absPath))
		return &models.IngestReport{RunID: uuid.NewString(), Skipped: 1}, nil
	}

	lines, err := in.extractor.Lines(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract lines: %w", err)
	}
	inputs := make([]models.EntryInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, models.EntryInput{Text: line, Category: in.category, Source: absPath})
	}

	report := &models.IngestReport{RunID: uuid.NewString()}
	if len(inputs) > 0 {
		report, err = in.IngestEntries(ctx, inputs)
		if err != nil {
			return nil, err
		}
	}
	report.Files = 1

	if err := in.storage.PutSourceFile(ctx, &models.SourceFile{
		Path:    absPath,
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
		Lines:   len(inputs),
	}); err != nil {
		return nil, fmt.Errorf("record source file: %w", err)
	}
	in.logger.Info("ingested file", zap.String("path", absPath), zap.Int("lines", len(inputs)))
	return report, nil
}

func (in *Ingester) unchanged(ctx context.Context, absPath string, info os.FileInfo) bool {
	prev, err := in.storage.GetSourceFile(ctx, absPath)
	if err != nil {
		return false
	}
	return prev.ModTime == info.ModTime().UnixNano() && prev.Size == info.Size()
}

// IngestDirectory walks dir and ingests each regular file whose extension is in
// allowedExts (all files when empty). Subdirectories are visited only when recursive is set.
// Per-file errors are logged and the walk continues; the first error is returned with
// the partial report.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (*models.IngestReport, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	total := &models.IngestReport{RunID: uuid.NewString()}
	var firstErr error
	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		r, err := in.IngestFile(ctx, path, allowedExts)
		if err != nil {
			in.logger.Warn("ingest file failed", zap.String("path", path), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", path, err)
			}
			return nil
		}
		total.Files += r.Files
		total.Skipped += r.Skipped
		total.Entries += r.Entries
		return nil
	})
	if walkErr != nil {
		return total, walkErr
	}
	return total, firstErr
}

// DeleteEntry removes an entry from storage and both indices.
func (in *Ingester) DeleteEntry(ctx context.Context, id string) error {
	if err := in.storage.DeleteEntry(ctx, id); err != nil {
		return err
	}
	if err := in.vectorIndex.Remove(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if in.keywordIndex != nil {
		if err := in.keywordIndex.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	in.logger.Debug("baseline entry deleted", zap.String("id", id))
	return nil
}

// Restore loads every stored entry into the vector and keyword indices.
// Entries stored without a vector are re-embedded.
// It is used at startup with the in-memory vector index.
func (in *Ingester) Restore(ctx context.Context) (int, error) {
	entries, err := in.storage.AllEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("load entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var missing, present []*models.BaselineEntry
	for _, e := range entries {
		if len(e.Vector) != in.embedder.Dimensions() {
			missing = append(missing, e)
		} else {
			present = append(present, e)
		}
	}
	for start := 0; start < len(missing); start += in.batchSize {
		end := start + in.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		if err := in.writeBatch(ctx, missing[start:end]); err != nil {
			return 0, err
		}
	}

	if len(present) == 0 {
		in.logger.Info("baseline restored", zap.Int("entries", len(entries)), zap.Int("re_embedded", len(missing)))
		return len(entries), nil
	}
	// Re-embedded entries went through writeBatch and are already in both indices.
	if err := in.vectorIndex.Add(ctx, present); err != nil {
		return 0, fmt.Errorf("failed to index vectors: %w", err)
	}
	if in.keywordIndex != nil {
		if err := in.keywordIndex.Index(ctx, present); err != nil {
			return 0, fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	in.logger.Info("baseline restored", zap.Int("entries", len(entries)), zap.Int("re_embedded", len(missing)))
	return len(entries), nil
}

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
