package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhubert/parley/paths"
)

func setupTestLogger(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	logPath := filepath.Join(t.TempDir(), "test-debug.log")
	if err := Init(logPath); err != nil {
		t.Fatalf("Failed to init logger: %v", err)
	}
	return logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestGet_StructuredLogging(t *testing.T) {
	logPath := setupTestLogger(t)

	Get().Info("tool call opened", "tool", "read_file", "chunks", 3)

	content := readLog(t, logPath)
	for _, want := range []string{"tool call opened", "tool=read_file", "chunks=3"} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q, got:\n%s", want, content)
		}
	}
}

func TestWithSession(t *testing.T) {
	logPath := setupTestLogger(t)

	WithSession("/home/me/proj").Info("event dropped")

	content := readLog(t, logPath)
	if !strings.Contains(content, "session=/home/me/proj") {
		t.Errorf("log should carry the session key, got:\n%s", content)
	}
}

func TestWithComponent(t *testing.T) {
	logPath := setupTestLogger(t)

	WithComponent("dispatcher").Warn("queue full")

	content := readLog(t, logPath)
	if !strings.Contains(content, "component=dispatcher") {
		t.Errorf("log should carry the component, got:\n%s", content)
	}
}

func TestSetDebug(t *testing.T) {
	logPath := setupTestLogger(t)

	Get().Debug("hidden at info")
	SetDebug(true)
	Get().Debug("visible at debug")
	SetDebug(false)

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden at info") {
		t.Error("debug message logged before SetDebug(true)")
	}
	if !strings.Contains(content, "visible at debug") {
		t.Error("debug message missing after SetDebug(true)")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	first := setupTestLogger(t)

	second := filepath.Join(t.TempDir(), "other.log")
	if err := Init(second); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if Path() != first {
		t.Errorf("Path() = %q, want first path %q", Path(), first)
	}
}

func TestClearLogs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PARLEY_HOME", home)
	paths.Reset()
	t.Cleanup(paths.Reset)
	Reset()
	t.Cleanup(Reset)

	logs := filepath.Join(home, "logs")
	if err := os.MkdirAll(logs, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"parley.log", "stream-a.log", "stream-b.log", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(logs, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := ClearLogs()
	if err != nil {
		t.Fatalf("ClearLogs: %v", err)
	}
	if n != 3 {
		t.Errorf("ClearLogs removed %d files, want 3", n)
	}
	if _, err := os.Stat(filepath.Join(logs, "keep.txt")); err != nil {
		t.Errorf("unrelated file should survive: %v", err)
	}
}
