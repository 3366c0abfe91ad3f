package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/app"
	"github.com/hyperjump/logsentry/internal/config"
	"github.com/hyperjump/logsentry/internal/embedding"
	"github.com/hyperjump/logsentry/internal/ingest"
	"github.com/hyperjump/logsentry/internal/keyword"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/rules"
	"github.com/hyperjump/logsentry/internal/server"
	"github.com/hyperjump/logsentry/internal/storage"
	"github.com/hyperjump/logsentry/internal/vector"
)

const directConfig = `
embedding:
  provider: hashing
  dimensions: 128
storage:
  database_path: "./data/baseline.db"
  bleve_index_path: "./data/bleve"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"sshd"}, "sshd"},
		{"multiple words", []string{"User", "admin", "logged", "in"}, "User admin logged in"},
		{"quoted line", []string{"User admin logged in"}, "User admin logged in"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinArgs(tt.args); got != tt.expected {
				t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
embedding:
  provider: hashing
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	configPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: hashing
`)
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "logsentry version dev") {
		t.Errorf("version output: %q", out)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	configPath := writeConfig(t, directConfig)
	if _, err := run(t, "status", "--server=", "--config", configPath, "--output", "yaml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestDirectMode_IngestCalibrateDetect(t *testing.T) {
	configPath := writeConfig(t, directConfig)
	common := []string{"--server=", "--config", configPath}

	out, err := run(t, append([]string{"ingest", "--seed"}, common...)...)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Ingested 8 entries") {
		t.Errorf("ingest output: %s", out)
	}

	out, err = run(t, append([]string{"calibrate"}, common...)...)
	if err != nil {
		t.Fatalf("calibrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Calibrated: method=kth k=5") {
		t.Errorf("calibrate output: %s", out)
	}

	args := append([]string{"detect", "--k", "1"}, common...)
	out, err = run(t, append(args, strings.Fields(ingest.DefaultBaseline[4])...)...)
	if err != nil {
		t.Fatalf("detect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[NORMAL]") || !strings.Contains(out, "threshold (stored)") {
		t.Errorf("detect output: %s", out)
	}

	out, err = run(t, append([]string{"status", "--output", "json"}, common...)...)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var st models.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, out)
	}
	if st.Entries != 8 || len(st.Calibrations) != 1 {
		t.Errorf("status: %+v", st)
	}
}

func TestDirectMode_EmptyBaseline(t *testing.T) {
	configPath := writeConfig(t, directConfig)
	out, err := run(t, "detect", "--server=", "--config", configPath, "anything")
	if err != nil {
		t.Fatalf("detect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "no comparable data") {
		t.Errorf("detect output: %s", out)
	}

	out, err = run(t, "calibrate", "--server=", "--config", configPath)
	if err != nil {
		t.Fatalf("calibrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Calibration unavailable") {
		t.Errorf("calibrate output: %s", out)
	}
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Embedding.Provider = "hashing"
	cfg.Embedding.Dimensions = 128
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "baseline.db"))
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewHashingEmbedder(128)
	idx, err := vector.NewMemoryIndex(128)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewMemBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	matcher := rules.NewMatcher([]rules.IOC{{Value: "192.168.1.5", Name: "jump host"}}, nil)
	c := app.Assemble(cfg, store, emb, idx, kw, matcher, zap.NewNop())
	t.Cleanup(c.Close)

	ts := httptest.NewServer(server.NewServer(c, &cfg.Server, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServerMode(t *testing.T) {
	ts := newTestAPI(t)

	out, err := run(t, "ingest", "--seed", "--server", ts.URL)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}

	logDir := t.TempDir()
	logFile := filepath.Join(logDir, "auth.log")
	if err := os.WriteFile(logFile, []byte("sshd accepted publickey for deploy\n\ncron job logrotate finished\n"), 0600); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "ingest", "--server", ts.URL, logDir)
	if err != nil {
		t.Fatalf("ingest dir: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Ingested 2 entries from 1 files") {
		t.Errorf("ingest dir output: %s", out)
	}

	out, err = run(t, "calibrate", "--server", ts.URL, "--output", "json")
	if err != nil {
		t.Fatalf("calibrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"status": "calibrated"`) {
		t.Errorf("calibrate output: %s", out)
	}

	out, err = run(t, "detect", "--server", ts.URL, "--output", "compact", "--k", "1", ingest.DefaultBaseline[1])
	if err != nil {
		t.Fatalf("detect: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "normal\t") {
		t.Errorf("detect output: %q", out)
	}

	out, err = run(t, "rules", "check", "--server", ts.URL, "login", "from", "192.168.1.5")
	if err != nil {
		t.Fatalf("rules check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[IOC HIT] 192.168.1.5 (jump host)") {
		t.Errorf("rules check output: %s", out)
	}

	out, err = run(t, "rules", "hunt", "--server", ts.URL, "--output", "compact")
	if err != nil {
		t.Fatalf("rules hunt: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "192.168.1.5\t") {
		t.Errorf("rules hunt output: %q", out)
	}

	out, err = run(t, "status", "--server", ts.URL)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Baseline entries:   10") {
		t.Errorf("status output: %s", out)
	}
}

func TestRulesCheck_LocalBundle(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "iocs.json")
	content := `{"type":"bundle","objects":[
{"type":"indicator","id":"indicator--1","name":"dumper","pattern":"[process:value = 'mimikatz.exe']"}
]}`
	if err := os.WriteFile(bundle, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "rules", "check", "--bundle", bundle, "--output", "compact", "run", "mimikatz.exe", "now")
	if err != nil {
		t.Fatalf("rules check: %v\n%s", err, out)
	}
	if out != "mimikatz.exe\tdumper\t4\n" {
		t.Errorf("rules check output: %q", out)
	}
}

func TestWatchCommands(t *testing.T) {
	configPath := writeConfig(t, directConfig)
	dir := t.TempDir()

	out, err := run(t, "watch", "add", "--config", configPath, dir)
	if err != nil {
		t.Fatalf("watch add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Added: "+dir) {
		t.Errorf("watch add output: %s", out)
	}
	out, _ = run(t, "watch", "add", "--config", configPath, dir)
	if !strings.Contains(out, "Already watched") {
		t.Errorf("second add output: %s", out)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != dir {
		t.Errorf("saved directories: %v", cfg.Watch.Directories)
	}

	out, err = run(t, "watch", "list", "--config", configPath)
	if err != nil || strings.TrimSpace(out) != dir {
		t.Errorf("watch list: %q, %v", out, err)
	}

	if out, err := run(t, "watch", "remove", "--config", configPath, dir); err != nil {
		t.Fatalf("watch remove: %v\n%s", err, out)
	}
	if _, err := run(t, "watch", "remove", "--config", configPath, dir); err == nil {
		t.Error("removing an unwatched directory should fail")
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{filepath.Join(dir, "a.log"), filepath.Join(dir, "b.bin"), filepath.Join(sub, "c.LOG")} {
		if err := os.WriteFile(p, []byte("x\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectFiles([]string{dir}, []string{".log"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("recursive: got %v", files)
	}
	files, err = collectFiles([]string{dir}, []string{".log"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "a.log" {
		t.Errorf("non-recursive: got %v", files)
	}
	files, err = collectFiles([]string{filepath.Join(dir, "b.bin")}, []string{".log"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("explicit file should be kept: got %v", files)
	}
}
