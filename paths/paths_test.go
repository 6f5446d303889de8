package paths

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestHome points HOME at a temp dir, clears XDG/PARLEY vars and resets the cache.
func setupTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("PARLEY_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	Reset()
	t.Cleanup(Reset)
	return tmpDir
}

func TestFreshInstallNoXDG(t *testing.T) {
	home := setupTestHome(t)
	expected := filepath.Join(home, ".parley")

	configDir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if configDir != expected {
		t.Errorf("ConfigDir = %q, want %q", configDir, expected)
	}

	stateDir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir: %v", err)
	}
	if stateDir != expected {
		t.Errorf("StateDir = %q, want %q", stateDir, expected)
	}

	if !IsFlatLayout() {
		t.Error("IsFlatLayout should be true for fresh install without XDG")
	}
}

func TestFlatDirWinsOverXDG(t *testing.T) {
	home := setupTestHome(t)
	flat := filepath.Join(home, ".parley")
	if err := os.MkdirAll(flat, 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg-config"))
	Reset()

	configDir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if configDir != flat {
		t.Errorf("ConfigDir = %q, want %q", configDir, flat)
	}
}

func TestXDGLayout(t *testing.T) {
	home := setupTestHome(t)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	Reset()

	configFile, err := ConfigFilePath()
	if err != nil {
		t.Fatalf("ConfigFilePath: %v", err)
	}
	if want := filepath.Join(home, "cfg", "parley", "config.jsonc"); configFile != want {
		t.Errorf("ConfigFilePath = %q, want %q", configFile, want)
	}

	logs, err := LogsDir()
	if err != nil {
		t.Fatalf("LogsDir: %v", err)
	}
	if want := filepath.Join(home, "state", "parley", "logs"); logs != want {
		t.Errorf("LogsDir = %q, want %q", logs, want)
	}

	profiles, err := ToolProfilesPath()
	if err != nil {
		t.Fatalf("ToolProfilesPath: %v", err)
	}
	if want := filepath.Join(home, "cfg", "parley", "tools.yaml"); profiles != want {
		t.Errorf("ToolProfilesPath = %q, want %q", profiles, want)
	}

	if IsFlatLayout() {
		t.Error("IsFlatLayout should be false for XDG layout")
	}
}

func TestParleyHomeOverride(t *testing.T) {
	setupTestHome(t)
	root := t.TempDir()
	t.Setenv("PARLEY_HOME", root)
	Reset()

	stateDir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir: %v", err)
	}
	if stateDir != root {
		t.Errorf("StateDir = %q, want %q", stateDir, root)
	}
}

func TestResetClearsCache(t *testing.T) {
	home := setupTestHome(t)

	first, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "elsewhere"))
	cached, _ := ConfigDir()
	if cached != first {
		t.Errorf("cached ConfigDir changed without Reset: %q -> %q", first, cached)
	}

	Reset()
	fresh, _ := ConfigDir()
	if fresh == first {
		t.Errorf("ConfigDir after Reset should follow XDG_CONFIG_HOME, still %q", fresh)
	}
}
