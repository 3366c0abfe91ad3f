package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/rules"
)

func sampleVerdict(anomalous bool) *models.DetectionVerdict {
	status := models.StatusNormal
	if anomalous {
		status = models.StatusAnomalous
	}
	return &models.DetectionVerdict{
		Text:            "Process mimikatz.exe started by svc_backup",
		Status:          status,
		Score:           0.8123,
		Threshold:       0.35,
		ThresholdSource: models.ThresholdCalibrated,
		IsAnomalous:     anomalous,
		Method:          "kth",
		K:               5,
		Neighbors: []*models.NeighborHit{
			{ID: "a", Similarity: 0.41, Text: strings.Repeat("x", 100)},
			{ID: "b", Similarity: 0.19, Text: "Antivirus scan completed. No threats found."},
		},
		QueryTimeMs: 12,
		DetectedAt:  time.Now(),
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", OutputCompact, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteVerdict_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVerdict(&buf, sampleVerdict(true), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"[ANOMALOUS] score 0.8123 > 0.3500",
		"1. sim=0.4100 | " + strings.Repeat("x", 60) + "...",
		"threshold (calibrated) = 0.3500",
		"anomaly_score (kth, k=5)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteVerdict(&buf, sampleVerdict(false), OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[NORMAL]") {
		t.Errorf("expected [NORMAL] in:\n%s", buf.String())
	}
}

func TestWriteVerdict_CompactAndJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVerdict(&buf, sampleVerdict(true), OutputCompact); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); !strings.HasPrefix(got, "anomalous\t0.8123\t0.3500\t") || strings.Count(got, "\n") != 1 {
		t.Errorf("compact output: %q", got)
	}

	buf.Reset()
	if err := WriteVerdict(&buf, sampleVerdict(true), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.DetectionVerdict
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !decoded.IsAnomalous || len(decoded.Neighbors) != 2 {
		t.Errorf("decoded verdict: %+v", decoded)
	}
}

func TestWriteNoComparable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNoComparable(&buf, "hello", OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), models.StatusNoComparableData) {
		t.Errorf("json output: %s", buf.String())
	}
	buf.Reset()
	if err := WriteNoComparable(&buf, "hello", OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no comparable data") {
		t.Errorf("text output: %s", buf.String())
	}
}

func TestWriteCalibration(t *testing.T) {
	current := models.Threshold{Value: 0.35, Source: models.ThresholdFallback}
	var buf bytes.Buffer
	if err := WriteCalibration(&buf, nil, current, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "unavailable") || !strings.Contains(buf.String(), "0.3500 (fallback)") {
		t.Errorf("unavailable output: %s", buf.String())
	}

	buf.Reset()
	cal := &models.Calibration{Threshold: 0.2718, Quantile: 0.95, Method: "kth", K: 5, Sampled: 8, Scored: 8}
	if err := WriteCalibration(&buf, cal, current, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "p95=0.2718") {
		t.Errorf("calibrated output: %s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	st := &models.Status{
		Entries: 8, IndexType: "memory", IndexCount: 8, EmbeddingDims: 1536,
		Threshold: models.Threshold{Value: 0.3, Source: models.ThresholdStored},
		RulesPath: "/etc/logsentry/iocs.json", Rules: 3,
		Calibrations: []*models.Calibration{{ID: 2, Method: "kth", K: 5, Quantile: 0.95, Threshold: 0.3, CreatedAt: time.Now()}},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Baseline entries:   8", "0.3000 (stored)", "3 from /etc/logsentry/iocs.json", "#2 "} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteMatchesAndHunt(t *testing.T) {
	ioc := rules.IOC{Value: "203.0.113.10", Name: "c2"}
	var buf bytes.Buffer
	if err := WriteMatches(&buf, "conn to 203.0.113.10", []rules.Match{{IOC: ioc, Offset: 8}}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[IOC HIT] 203.0.113.10 (c2)") {
		t.Errorf("matches output: %s", buf.String())
	}

	buf.Reset()
	if err := WriteMatches(&buf, "clean", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"matches": []`) {
		t.Errorf("expected empty matches array: %s", buf.String())
	}

	buf.Reset()
	if err := WriteHuntHits(&buf, []rules.HuntHit{{IOC: ioc, EntryID: "e1", Text: "blocked 203.0.113.10"}}, OutputCompact); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "203.0.113.10\te1\tblocked 203.0.113.10\n" {
		t.Errorf("hunt compact output: %q", buf.String())
	}
}

func TestWriteIngestReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteIngestReport(&buf, &models.IngestReport{Files: 2, Skipped: 1, Entries: 40}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Ingested 40 entries from 2 files (1 unchanged files skipped)") {
		t.Errorf("report output: %s", buf.String())
	}
}
