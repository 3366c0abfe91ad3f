// Package extract turns log exports in various file formats into log lines.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/logsentry/pkg/utils"
)

// SupportedExtensions lists the extensions with a dedicated extractor.
// Any other extension is read as plain text.
var SupportedExtensions = []string{".log", ".txt", ".csv", ".json", ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".ods"}

// Extractor extracts log lines from files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content, one record per line.
// Plain text files are returned as-is (UTF-8 validated). Spreadsheets yield one line
// per row, documents one line per paragraph.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractWithCat(content)
	case ".xlsx":
		return extractExcel(content)
	case ".ods":
		return extractODS(content)
	default:
		return extractPlain(content)
	}
}

// Lines reads the file at path and returns its non-empty, trimmed lines.
func (e *Extractor) Lines(path string) ([]string, error) {
	text, err := e.Extract(path)
	if err != nil {
		return nil, err
	}
	return utils.SplitLines(text), nil
}

// LinesBytes is Lines for in-memory content.
func (e *Extractor) LinesBytes(content []byte, ext string) ([]string, error) {
	text, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, err
	}
	return utils.SplitLines(text), nil
}
