package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) waitFor(t *testing.T, suffix string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range r.snapshot() {
			if strings.HasSuffix(p, suffix) {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no callback for %s, got %v", suffix, r.snapshot())
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := mkdirAll(sub); err != nil {
		t.Fatal(err)
	}
	var rec recorder
	w := NewWatcher([]string{dir}, []string{".log"}, true, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(sub, "ignored.bin"), "x"); err != nil {
		t.Fatal(err)
	}
	fPath := filepath.Join(sub, "auth.log")
	for i := 0; i < 3; i++ {
		if err := writeFile(fPath, strings.Repeat("line\n", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	rec.waitFor(t, "auth.log")
	time.Sleep(150 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 {
		t.Errorf("burst of writes should be debounced into one callback, got %v", got)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.log", []string{".log"}, true},
		{"/a/b.LOG", []string{".log"}, true},
		{"/a/b.log", []string{"log"}, true},
		{"/a/b.md", []string{".log"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.log", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.log":          "hello",
		"ignore.xyz":     "x",
		"nested/b.log":   "deep",
		"nested/c.other": "x",
	} {
		p := filepath.Join(dir, name)
		if err := mkdirAll(filepath.Dir(p)); err != nil {
			t.Fatal(err)
		}
		if err := writeFile(p, content); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		recursive bool
		want      int
	}{
		{"flat", false, 1},
		{"recursive", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			w := NewWatcher([]string{dir}, []string{".log"}, tt.recursive, rec.record)
			if err := w.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			defer w.Stop()
			w.SyncExistingFiles()
			if got := rec.snapshot(); len(got) != tt.want {
				t.Errorf("synced %v, want %d files", got, tt.want)
			}
		})
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := NewWatcher([]string{root}, []string{".log"}, true, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_NewDirectoryIsSynced(t *testing.T) {
	dir := t.TempDir()
	var rec recorder
	w := NewWatcher([]string{dir}, []string{".log"}, true, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "level1", "level2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.log"), "deep content"); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "deep.log")
}

func TestWatcher_RemoveHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.log")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	var removed recorder
	w := NewWatcher([]string{dir}, []string{".log"}, false, nil, WithRemoveHandler(removed.record))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	removed.waitFor(t, "gone.log")
}

func TestFileWatcher_OnlyReportsTargetFile(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "bundle.json")
	if err := writeFile(bundle, "{}"); err != nil {
		t.Fatal(err)
	}
	var rec recorder
	w, err := NewFileWatcher(bundle, rec.record, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "other.json"), "{}"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(bundle, `{"objects":[]}`); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "bundle.json")
	time.Sleep(150 * time.Millisecond)
	for _, p := range rec.snapshot() {
		if strings.HasSuffix(p, "other.json") {
			t.Errorf("sibling file should not be reported: %v", rec.snapshot())
		}
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
