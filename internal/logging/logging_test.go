package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterTagsRunID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, slog.LevelInfo, "run-1")
	log.Info("metadata created", "event", "archive.metadata")
	log.Debug("hidden", "event", "agent.resolved")

	out := buf.String()
	if !strings.Contains(out, "id=run-1") || !strings.Contains(out, "event=archive.metadata") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
}

func TestNewAppendsToFile(t *testing.T) {
	dir := t.TempDir()

	for _, id := range []string{"first", "second"} {
		log, closeLog, err := New(dir, slog.LevelInfo, id)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		log.Info("run done", "event", "archive.bulk")
		if err := closeLog(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], "id=first") || !strings.Contains(lines[1], "id=second") {
		t.Errorf("log = %s", data)
	}
}

func TestNewRequiresExistingDirectory(t *testing.T) {
	if _, _, err := New(filepath.Join(t.TempDir(), "missing"), slog.LevelInfo, "x"); err == nil {
		t.Error("expected error for missing directory")
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := New(file, slog.LevelInfo, "x"); err == nil {
		t.Error("expected error for non-directory")
	}
}

func TestNewStdout(t *testing.T) {
	log, closeLog, err := New("", slog.LevelInfo, "x")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log == nil {
		t.Fatal("nil logger")
	}
	if err := closeLog(); err != nil {
		t.Errorf("close: %v", err)
	}
}
