package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
embedding:
  provider: hashing
  dimensions: 256
  timeout: 15s
detection:
  k: 7
  score_method: avg
calibration:
  quantile: 0.9
  interval: 1h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Embedding.Provider != "hashing" || cfg.Embedding.Dimensions != 256 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Timeout != 15*time.Second {
		t.Errorf("embedding timeout = %v, want 15s", cfg.Embedding.Timeout)
	}
	if cfg.Detection.K != 7 || cfg.Detection.ScoreMethod != "avg" {
		t.Errorf("unexpected detection config: %+v", cfg.Detection)
	}
	if cfg.Calibration.Quantile != 0.9 {
		t.Errorf("quantile = %v, want 0.9", cfg.Calibration.Quantile)
	}
	if cfg.Calibration.Interval != time.Hour {
		t.Errorf("interval = %v, want 1h", cfg.Calibration.Interval)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/baseline.db"
rules:
  bundle_path: "./out/bundle_stix21.json"
watch:
  directories: ["./logs/normal"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "baseline.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantBundle := filepath.Join(dir, "out", "bundle_stix21.json")
	if cfg.Rules.BundlePath != wantBundle {
		t.Errorf("bundle_path = %s, want %s", cfg.Rules.BundlePath, wantBundle)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "logs", "normal")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
	if !cfg.Watch.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown score method", "detection:\n  score_method: median\n"},
		{"quantile above one", "calibration:\n  quantile: 1.5\n"},
		{"negative k", "detection:\n  k: -2\n"},
		{"unknown index", "index:\n  type: faiss\n"},
		{"knn engine without filtering", "index:\n  type: opensearch\n  opensearch:\n    engine: nmslib\n"},
		{"unknown provider", "embedding:\n  provider: cohere\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Detection.K != 5 {
		t.Errorf("default k: got %d", cfg.Detection.K)
	}
	if cfg.Detection.ScoreMethod != "kth" {
		t.Errorf("default score method: got %s", cfg.Detection.ScoreMethod)
	}
	if cfg.Detection.FallbackThreshold != 0.35 {
		t.Errorf("default fallback threshold: got %v", cfg.Detection.FallbackThreshold)
	}
	if cfg.Calibration.SampleSize != 200 || cfg.Calibration.Quantile != 0.95 || cfg.Calibration.Seed != 42 {
		t.Errorf("default calibration: got %+v", cfg.Calibration)
	}
	if !cfg.Calibration.OnStartupOrDefault() {
		t.Error("calibration on startup should default to true")
	}
	if cfg.Embedding.Dimensions != 1536 || cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("default embedding: got %+v", cfg.Embedding)
	}
	if cfg.Embedding.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("default api key env: got %s", cfg.Embedding.APIKeyEnv)
	}
	if cfg.Index.Type != "memory" || cfg.Index.OpenSearch.IndexName != "security-logs-knn" {
		t.Errorf("default index: got %+v", cfg.Index)
	}
	if cfg.Index.OpenSearch.VectorField != "log_vector" || cfg.Index.OpenSearch.TextField != "log_text" {
		t.Errorf("default opensearch fields: got %+v", cfg.Index.OpenSearch)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_azureKeyEnv(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Provider: "azure"}}
	ApplyDefaults(cfg)
	if cfg.Embedding.APIKeyEnv != "AZURE_OPENAI_API_KEY" {
		t.Errorf("azure api key env: got %s", cfg.Embedding.APIKeyEnv)
	}
}

func TestSave_roundTrip(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = "/tmp/x.db"
	cfg.Storage.BleveIndexPath = "/tmp/bleve"
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Detection.K != cfg.Detection.K || loaded.Storage.DatabasePath != "/tmp/x.db" {
		t.Errorf("round trip mismatch: %+v", loaded.Detection)
	}
}
