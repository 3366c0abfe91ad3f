// Package entryid provides deterministic baseline entry IDs.
package entryid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const prefix = "log:"

// FromText returns a stable ID for a log line seen in source.
// Same source and text (after trimming) always yield the same ID, so
// re-ingesting a file does not duplicate its lines.
func FromText(source, text string) string {
	if source != "" {
		source = filepath.Clean(source)
	}
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	return prefix + hex.EncodeToString(h.Sum(nil))[:32]
}

// Valid reports whether id looks like an ID produced by FromText.
func Valid(id string) bool {
	if !strings.HasPrefix(id, prefix) || len(id) != len(prefix)+32 {
		return false
	}
	_, err := hex.DecodeString(id[len(prefix):])
	return err == nil
}
