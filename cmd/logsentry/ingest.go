package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/logsentry/internal/cli"
	"github.com/hyperjump/logsentry/internal/extract"
	"github.com/hyperjump/logsentry/internal/ingest"
	"github.com/hyperjump/logsentry/internal/models"
)

// uploadBatch bounds the entries sent per request in server mode.
const uploadBatch = 500

type ingestOptions struct {
	seed       bool
	category   string
	extensions []string
	recursive  bool
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	o := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest [flags] [file-or-directory...]",
		Short: "Add normal log lines to the baseline",
		Long: `Add normal log lines to the baseline. Every non-blank line of a file becomes one
baseline entry (.xlsx/.ods rows, .pdf/.docx/.odt/.rtf paragraphs, plain text otherwise).

Examples:
  logsentry ingest --seed
  logsentry ingest --category auth /var/log/normal/auth.log
  logsentry ingest --recursive=false ./exports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !o.seed && len(args) == 0 {
				return fmt.Errorf("give a file or directory, or --seed")
			}
			format, err := opts.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var report *models.IngestReport
			if opts.serverURL != "" {
				report, err = ingestViaHTTP(ctx, newAPIClient(opts.serverURL), o, args)
			} else {
				report, err = ingestDirect(ctx, opts, o, args)
			}
			if report != nil {
				if werr := cli.WriteIngestReport(cmd.OutOrStdout(), report, format); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&o.seed, "seed", false, "add the built-in sample baseline")
	cmd.Flags().StringVar(&o.category, "category", "", "category recorded for ingested lines (default from config)")
	cmd.Flags().StringSliceVar(&o.extensions, "ext", nil, "file extensions to ingest from directories (default from config)")
	cmd.Flags().BoolVar(&o.recursive, "recursive", true, "descend into subdirectories")
	return cmd
}

func addReport(total, r *models.IngestReport) {
	total.Files += r.Files
	total.Skipped += r.Skipped
	total.Entries += r.Entries
}

func ingestDirect(ctx context.Context, opts *rootOptions, o *ingestOptions, paths []string) (*models.IngestReport, error) {
	components, cleanup, err := openComponents(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	ingester := components.Ingester
	category := components.Config.Watch.Category
	if o.category != "" {
		category = o.category
		ingester = ingest.NewIngester(components.Storage, components.Embedder, components.VectorIndex,
			components.KeywordIndex, nil, ingest.WithCategory(category))
	}
	exts := o.extensions
	if len(exts) == 0 {
		exts = components.Config.Watch.Extensions
	}

	total := &models.IngestReport{}
	if o.seed {
		r, err := ingester.IngestEntries(ctx, ingest.SeedInputs(category))
		if err != nil {
			return nil, err
		}
		addReport(total, r)
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return total, fmt.Errorf("failed to stat path: %w", err)
		}
		var r *models.IngestReport
		if info.IsDir() {
			r, err = ingester.IngestDirectory(ctx, p, exts, o.recursive)
		} else {
			// A file named explicitly is ingested whatever its extension.
			r, err = ingester.IngestFile(ctx, p, nil)
		}
		if r != nil {
			addReport(total, r)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ingestViaHTTP extracts lines locally and uploads them. Entry IDs derive from the
// absolute path and line text, so uploading the same file twice does not duplicate entries.
func ingestViaHTTP(ctx context.Context, client *apiClient, o *ingestOptions, paths []string) (*models.IngestReport, error) {
	total := &models.IngestReport{}
	if o.seed {
		r, err := client.addBaseline(ctx, ingest.SeedInputs(o.category))
		if err != nil {
			return nil, err
		}
		addReport(total, r)
	}
	exts := o.extensions
	if len(exts) == 0 {
		exts = extract.SupportedExtensions
	}
	files, err := collectFiles(paths, exts, o.recursive)
	if err != nil {
		return total, err
	}
	extractor := extract.NewExtractor()
	for _, f := range files {
		lines, err := extractor.Lines(f)
		if err != nil {
			return total, fmt.Errorf("%s: %w", f, err)
		}
		inputs := make([]models.EntryInput, len(lines))
		for i, line := range lines {
			inputs[i] = models.EntryInput{Text: line, Category: o.category, Source: f}
		}
		for start := 0; start < len(inputs); start += uploadBatch {
			end := start + uploadBatch
			if end > len(inputs) {
				end = len(inputs)
			}
			r, err := client.addBaseline(ctx, inputs[start:end])
			if err != nil {
				return total, fmt.Errorf("%s: %w", f, err)
			}
			total.Entries += r.Entries
		}
		total.Files++
	}
	return total, nil
}

// collectFiles expands directories into the regular files under them whose extension is in exts.
// Files named explicitly are always included. Returned paths are absolute.
func collectFiles(paths []string, exts []string, recursive bool) ([]string, error) {
	var out []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path: %w", err)
		}
		if !info.IsDir() {
			out = append(out, abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != abs && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if hasExtension(path, exts) && d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
