// internal/logging/logger_test.go
package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRotatingWriter_Writes(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "sitegen.log")

	w, err := NewRotatingWriter(logPath, 1024*1024, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	msg := "build finished\n"
	n, err := w.Write([]byte(msg))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(msg) {
		t.Errorf("Write() = %d, want %d", n, len(msg))
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != msg {
		t.Errorf("log content = %q, want %q", string(content), msg)
	}
}

func TestRotatingWriter_RotatesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 100, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	first := strings.Repeat("a", 60) + "\n"
	second := strings.Repeat("b", 60) + "\n"
	if _, err := w.Write([]byte(first)); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(second)); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(logPath + ".1.gz")
	if err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("rotated file is not valid gzip: %v", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != first {
		t.Errorf("rotated content = %q, want %q", data, first)
	}

	current, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(current) != second {
		t.Errorf("current content = %q, want %q", current, second)
	}
}

func TestRotatingWriter_KeepsBackups(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 30, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := strings.Repeat("z", 40) + "\n"
	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	rotated, _ := filepath.Glob(filepath.Join(dir, "test.log.*"))
	if len(rotated) != 2 {
		t.Errorf("expected 2 rotated files, got %v", rotated)
	}
}

func TestRotatingWriter_ThreadSafe(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(logPath, 1024, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.Write([]byte(strings.Repeat("x", 10) + "\n"))
			}
		}()
	}
	wg.Wait()
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("json", "info", &buf).Info("page rendered", "path", "index.html")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q", buf.String())
	}
	if entry["path"] != "index.html" {
		t.Errorf("unexpected entry: %v", entry)
	}

	buf.Reset()
	NewLogger("text", "info", &buf).Info("page rendered")
	if !strings.Contains(buf.String(), "msg=\"page rendered\"") {
		t.Errorf("expected text line, got %q", buf.String())
	}
}

func TestNewLogger_AutoNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("auto", "info", &buf).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto format on a buffer should be JSON, got %q", buf.String())
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("text", "warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn should be logged")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithTrigger(t *testing.T) {
	var buf bytes.Buffer
	WithTrigger(NewLogger("text", "info", &buf), "watch").Info("build started")
	if !strings.Contains(buf.String(), "trigger=watch") {
		t.Errorf("expected trigger attribute, got %q", buf.String())
	}
}
