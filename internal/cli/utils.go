// Package cli provides output writers for the logsentry command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/rules"
	"github.com/hyperjump/logsentry/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// neighborTextLen bounds neighbor text in text output.
const neighborTextLen = 60

// ParseOutputFormat validates a format name. Empty selects OutputText.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text, compact or json)", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteVerdict writes one detection verdict to w in the given format.
func WriteVerdict(w io.Writer, v *models.DetectionVerdict, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, v)
	case OutputCompact:
		_, err := fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%s\n", v.Status, v.Score, v.Threshold, v.Text)
		return err
	}

	fmt.Fprintf(w, "\nLog: %s\n", v.Text)
	if len(v.Neighbors) > 0 {
		fmt.Fprintln(w, "  Top neighbors:")
		for i, n := range v.Neighbors {
			fmt.Fprintf(w, "    %d. sim=%.4f | %s\n", i+1, n.Similarity, utils.Truncate(n.Text, neighborTextLen))
		}
	}
	fmt.Fprintf(w, "  anomaly_score (%s, k=%d) = %.4f\n", v.Method, v.K, v.Score)
	fmt.Fprintf(w, "  threshold (%s) = %.4f\n", v.ThresholdSource, v.Threshold)
	if v.IsAnomalous {
		fmt.Fprintf(w, "  [ANOMALOUS] score %.4f > %.4f\n", v.Score, v.Threshold)
	} else {
		fmt.Fprintf(w, "  [NORMAL] score %.4f <= %.4f\n", v.Score, v.Threshold)
	}
	fmt.Fprintf(w, "  (%dms)\n", v.QueryTimeMs)
	return nil
}

// WriteNoComparable reports that text had no baseline neighbors to score against.
func WriteNoComparable(w io.Writer, text string, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, map[string]string{"text": text, "status": models.StatusNoComparableData})
	case OutputCompact:
		_, err := fmt.Fprintf(w, "%s\t-\t-\t%s\n", models.StatusNoComparableData, text)
		return err
	}
	_, err := fmt.Fprintf(w, "\nLog: %s\n  no comparable data (baseline empty or filters exclude everything)\n", text)
	return err
}

// WriteCalibration writes a calibration outcome. cal is nil when no threshold could be derived.
func WriteCalibration(w io.Writer, cal *models.Calibration, current models.Threshold, format OutputFormat) error {
	if format == OutputJSON {
		status := "calibrated"
		if cal == nil {
			status = "unavailable"
		}
		return writeJSON(w, map[string]interface{}{"status": status, "calibration": cal, "threshold": current})
	}
	if cal == nil {
		_, err := fmt.Fprintf(w, "Calibration unavailable; threshold stays %.4f (%s)\n", current.Value, current.Source)
		return err
	}
	_, err := fmt.Fprintf(w, "Calibrated: method=%s k=%d p%.4g=%.4f sampled=%d scored=%d skipped=%d (%dms)\n",
		cal.Method, cal.K, cal.Quantile*100, cal.Threshold, cal.Sampled, cal.Scored, cal.Skipped, cal.DurationMs)
	return err
}

// WriteStatus writes baseline and threshold state.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Baseline entries:   %d\n", st.Entries)
	fmt.Fprintf(w, "Similarity index:   %s (%d vectors, %d dims)\n", st.IndexType, st.IndexCount, st.EmbeddingDims)
	fmt.Fprintf(w, "Keyword documents:  %d\n", st.KeywordDocs)
	fmt.Fprintf(w, "Threshold:          %.4f (%s)\n", st.Threshold.Value, st.Threshold.Source)
	if st.RulesPath != "" {
		fmt.Fprintf(w, "IOC rules:          %d from %s\n", st.Rules, st.RulesPath)
	}
	if st.DiskUsage > 0 {
		fmt.Fprintf(w, "Disk usage:         %d bytes\n", st.DiskUsage)
	}
	for _, d := range st.WatchDirs {
		fmt.Fprintf(w, "Watching:           %s\n", d)
	}
	if len(st.Calibrations) > 0 {
		fmt.Fprintln(w, "Recent calibrations:")
		for _, c := range st.Calibrations {
			fmt.Fprintf(w, "  #%d %s %s k=%d p%.4g=%.4f scored=%d\n",
				c.ID, c.CreatedAt.Format("2006-01-02 15:04:05"), c.Method, c.K, c.Quantile*100, c.Threshold, c.Scored)
		}
	}
	return nil
}

// WriteMatches writes IOC matches found in one log line.
func WriteMatches(w io.Writer, text string, matches []rules.Match, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if matches == nil {
			matches = []rules.Match{}
		}
		return writeJSON(w, map[string]interface{}{"text": text, "matches": matches, "count": len(matches)})
	case OutputCompact:
		for _, m := range matches {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", m.IOC.Value, m.IOC.Name, m.Offset); err != nil {
				return err
			}
		}
		return nil
	}
	fmt.Fprintf(w, "\nLog: %s\n", text)
	if len(matches) == 0 {
		fmt.Fprintln(w, "  no known indicator matched")
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(w, "  [IOC HIT] %s (%s)\n", m.IOC.Value, m.IOC.Name)
	}
	return nil
}

// WriteHuntHits writes baseline entries that contain a known indicator.
func WriteHuntHits(w io.Writer, hits []rules.HuntHit, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if hits == nil {
			hits = []rules.HuntHit{}
		}
		return writeJSON(w, map[string]interface{}{"hits": hits, "count": len(hits)})
	case OutputCompact:
		for _, h := range hits {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", h.IOC.Value, h.EntryID, h.Text); err != nil {
				return err
			}
		}
		return nil
	}
	if len(hits) == 0 {
		fmt.Fprintln(w, "No indicator found in the baseline.")
		return nil
	}
	fmt.Fprintf(w, "%d baseline entries contain known indicators:\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(w, "  %s in %s: %s\n", h.IOC.Value, h.EntryID, utils.Truncate(h.Text, 120))
	}
	return nil
}

// WriteIngestReport writes the outcome of an ingestion run.
func WriteIngestReport(w io.Writer, r *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	_, err := fmt.Fprintf(w, "Ingested %d entries from %d files (%d unchanged files skipped)\n", r.Entries, r.Files, r.Skipped)
	return err
}
