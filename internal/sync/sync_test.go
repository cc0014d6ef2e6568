package sync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"github.com/conorfennell/blunderfix/internal/config"
	"github.com/conorfennell/blunderfix/internal/importer"
)

type fakeImporter struct {
	mu    stdsync.Mutex
	calls []string
}

func (f *fakeImporter) ImportPGNFor(_ context.Context, username, text string) (importer.PGNResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, username+":"+text)
	return importer.PGNResult{Username: username, Imported: 1, Total: 1}, nil
}

type fakeTracker struct {
	mu      stdsync.Mutex
	nextID  int64
	scanned map[int64]bool
}

func (f *fakeTracker) UpsertSource(_ context.Context, path, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTracker) MarkScanned(_ context.Context, id int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanned == nil {
		f.scanned = make(map[int64]bool)
	}
	f.scanned[id] = true
	return nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunImportsPGNFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"2024/jan.pgn":    "jan",
		"2024/FEB.PGN":    "feb",
		"notes.txt":       "ignored",
		".git/config.pgn": "ignored",
	})
	imp := &fakeImporter{}
	tracker := &fakeTracker{}
	s := New(imp, tracker, config.SyncConfig{ReposDir: t.TempDir(), Parallelism: 2},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	reports, err := s.Run(context.Background(), []config.SourceConfig{
		{Path: dir, Username: "alice"},
		{Path: filepath.Join(dir, "missing")},
	})
	if err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, but got %d", len(reports))
	}

	ok := reports[0]
	if ok.Err != nil || ok.Files != 2 || ok.Imported != 2 {
		t.Errorf("Expected 2 files imported without error, but got %+v", ok)
	}
	if reports[1].Err == nil {
		t.Error("Expected the missing directory to be reported as an error")
	}

	sort.Strings(imp.calls)
	want := []string{"alice:feb", "alice:jan"}
	if len(imp.calls) != len(want) {
		t.Fatalf("Expected calls %v, but got %v", want, imp.calls)
	}
	for i := range want {
		if imp.calls[i] != want[i] {
			t.Errorf("Expected call %q, but got %q", want[i], imp.calls[i])
		}
	}

	if len(tracker.scanned) != 1 {
		t.Errorf("Expected one source marked scanned, but got %d", len(tracker.scanned))
	}
}

func TestRunWithoutSources(t *testing.T) {
	s := New(&fakeImporter{}, nil, config.SyncConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	reports, err := s.Run(context.Background(), nil)
	if err != nil || reports != nil {
		t.Errorf("Expected no reports and no error, but got %v, %v", reports, err)
	}
}
