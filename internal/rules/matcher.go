package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/keyword"
	"github.com/hyperjump/logsentry/internal/metrics"
	"github.com/hyperjump/logsentry/internal/models"
)

// Match is one IOC found in a log line.
type Match struct {
	IOC    IOC `json:"ioc"`
	Offset int `json:"offset"`
}

// HuntHit is a baseline entry that contains an IOC.
type HuntHit struct {
	IOC      IOC    `json:"ioc"`
	EntryID  string `json:"entry_id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

// EntryLoader loads stored baseline entries by ID.
type EntryLoader interface {
	GetEntries(ctx context.Context, ids []string) ([]*models.BaselineEntry, error)
}

// Matcher holds the active IOC set. It is safe for concurrent use; Reload swaps the set atomically.
type Matcher struct {
	mu     sync.RWMutex
	path   string
	iocs   []IOC
	logger *zap.Logger
}

// NewMatcher returns a matcher over a fixed IOC set.
func NewMatcher(iocs []IOC, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{iocs: iocs, logger: logger}
}

// NewMatcherFromFile loads the bundle at path. Reload re-reads the same file.
func NewMatcherFromFile(path string, logger *zap.Logger) (*Matcher, error) {
	m := NewMatcher(nil, logger)
	m.path = path
	if _, err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the bundle path, or "" for a fixed set.
func (m *Matcher) Path() string {
	return m.path
}

// IOCs returns a copy of the active IOC set.
func (m *Matcher) IOCs() []IOC {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]IOC, len(m.iocs))
	copy(out, m.iocs)
	return out
}

// Len returns the number of active IOCs.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.iocs)
}

// Reload re-reads the bundle file. On error the previous set stays active.
func (m *Matcher) Reload() (int, error) {
	if m.path == "" {
		return 0, fmt.Errorf("matcher has no bundle path")
	}
	iocs, err := LoadBundle(m.path)
	if err != nil {
		m.logger.Warn("ioc bundle reload failed", zap.String("path", m.path), zap.Error(err))
		return 0, err
	}
	m.mu.Lock()
	m.iocs = iocs
	m.mu.Unlock()
	m.logger.Info("ioc bundle loaded", zap.String("path", m.path), zap.Int("iocs", len(iocs)))
	return len(iocs), nil
}

// Check returns every IOC whose value occurs in text, in IOC order.
// Matching is a case-sensitive substring test.
func (m *Matcher) Check(text string) []Match {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Match
	for _, ioc := range m.iocs {
		if i := strings.Index(text, ioc.Value); i >= 0 {
			out = append(out, Match{IOC: ioc, Offset: i})
		}
	}
	if len(out) > 0 {
		metrics.RuleHitsTotal.Add(float64(len(out)))
	}
	return out
}

// Hunt searches the baseline for entries containing any active IOC. Candidates come
// from a phrase query on the keyword index and are confirmed by substring on the
// stored text. perIOC bounds the candidates fetched per indicator.
func (m *Matcher) Hunt(ctx context.Context, kw keyword.KeywordIndex, entries EntryLoader, perIOC int) ([]HuntHit, error) {
	if perIOC <= 0 {
		perIOC = 100
	}
	var hits []HuntHit
	for _, ioc := range m.IOCs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates, err := kw.SearchPhrase(ctx, ioc.Value, perIOC)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", ioc.Value, err)
		}
		if len(candidates) == 0 {
			continue
		}
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		stored, err := entries.GetEntries(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load candidates for %q: %w", ioc.Value, err)
		}
		for _, e := range stored {
			if !strings.Contains(e.Text, ioc.Value) {
				continue
			}
			hits = append(hits, HuntHit{IOC: ioc, EntryID: e.ID, Text: e.Text, Category: e.Category, Source: e.Source})
		}
	}
	if len(hits) > 0 {
		metrics.RuleHitsTotal.Add(float64(len(hits)))
	}
	m.logger.Debug("ioc hunt finished", zap.Int("hits", len(hits)))
	return hits, nil
}
