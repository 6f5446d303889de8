// Package paths resolves where parley keeps its files.
//
// Two layouts are supported:
//
//   - Flat: everything under ~/.parley/ (config.jsonc, tools.yaml, logs/)
//   - XDG: config under XDG_CONFIG_HOME/parley, logs under XDG_STATE_HOME/parley
//
// Resolution order:
//  1. PARLEY_HOME is set → flat layout rooted there
//  2. ~/.parley/ exists → flat layout
//  3. any XDG variable is set → XDG layout
//  4. otherwise → flat layout under ~/.parley/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	dirName          = ".parley"
	xdgName          = "parley"
	configFileName   = "config.jsonc"
	profilesFileName = "tools.yaml"
)

var (
	mu       sync.Mutex
	resolved *layout
)

type layout struct {
	configDir string
	stateDir  string
	flat      bool
}

func resolve() (*layout, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	if root := os.Getenv("PARLEY_HOME"); root != "" {
		resolved = &layout{configDir: root, stateDir: root, flat: true}
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	flatDir := filepath.Join(home, dirName)

	if info, err := os.Stat(flatDir); err == nil && info.IsDir() {
		resolved = &layout{configDir: flatDir, stateDir: flatDir, flat: true}
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgConfig != "" || xdgState != "" || os.Getenv("XDG_DATA_HOME") != "" {
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		if xdgState == "" {
			xdgState = filepath.Join(home, ".local", "state")
		}
		resolved = &layout{
			configDir: filepath.Join(xdgConfig, xdgName),
			stateDir:  filepath.Join(xdgState, xdgName),
		}
		return resolved, nil
	}

	resolved = &layout{configDir: flatDir, stateDir: flatDir, flat: true}
	return resolved, nil
}

// ConfigDir returns the directory holding config.jsonc and tools.yaml.
func ConfigDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.configDir, nil
}

// StateDir returns the directory for runtime state and logs.
func StateDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.stateDir, nil
}

// ConfigFilePath returns the full path to config.jsonc.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ToolProfilesPath returns the full path to the user's tools.yaml override.
func ToolProfilesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, profilesFileName), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// IsFlatLayout reports whether config and state share one directory.
func IsFlatLayout() bool {
	l, err := resolve()
	if err != nil {
		return true
	}
	return l.flat
}

// Reset clears the cached resolution. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
