package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/zhubert/parley/paths"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultPromptMarker     = "parley> "
	DefaultFinalAnswerTool  = "attempt_completion"
	DefaultFinalAnswerField = "result"
	DefaultCallTimeout      = 10 * time.Second
	DefaultQueueSize        = 256
	DefaultArgWidth         = 120
	DefaultArgLines         = 20
	socketFileName          = "parley.sock"
)

// Config holds the application configuration
type Config struct {
	PromptMarker     string `json:"prompt_marker,omitempty"`      // Literal that starts the editable input line
	FinalAnswerTool  string `json:"final_answer_tool,omitempty"`  // Tool rendered as plain completion text
	FinalAnswerField string `json:"final_answer_field,omitempty"` // Argument of the final-answer tool holding the text
	SocketPath       string `json:"socket_path,omitempty"`        // Unix socket the backend connects to
	CallTimeoutMS    int    `json:"call_timeout_ms,omitempty"`    // Timeout for synchronous backend calls
	QueueSize        int    `json:"queue_size,omitempty"`         // Per-session event queue length
	ArgWidth         int    `json:"arg_width,omitempty"`          // Display width of one tool argument line
	ArgLines         int    `json:"arg_lines,omitempty"`          // Max lines shown per multi-line tool argument
	Debug            bool   `json:"debug,omitempty"`              // Debug logging and raw stream capture
	ToolProfiles     string `json:"tool_profiles,omitempty"`      // Path to a tools.yaml overriding the built-in profiles

	mu       sync.RWMutex
	filePath string
}

// Default returns a config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config from the default location, or returns defaults if the
// file doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a JSONC config file. Comments and trailing commas are allowed.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Defaults must be in place before Validate, which only reads.
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills unset fields. Not thread-safe; only called while the
// Config is still private to Load.
func (c *Config) applyDefaults() {
	if c.PromptMarker == "" {
		c.PromptMarker = DefaultPromptMarker
	}
	if c.FinalAnswerTool == "" {
		c.FinalAnswerTool = DefaultFinalAnswerTool
	}
	if c.FinalAnswerField == "" {
		c.FinalAnswerField = DefaultFinalAnswerField
	}
	if c.CallTimeoutMS <= 0 {
		c.CallTimeoutMS = int(DefaultCallTimeout / time.Millisecond)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ArgWidth <= 0 {
		c.ArgWidth = DefaultArgWidth
	}
	if c.ArgLines <= 0 {
		c.ArgLines = DefaultArgLines
	}
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.PromptMarker == "" {
		return fmt.Errorf("prompt_marker must not be empty")
	}
	if strings.ContainsAny(c.PromptMarker, "\r\n") {
		return fmt.Errorf("prompt_marker must be a single line: %q", c.PromptMarker)
	}
	if c.FinalAnswerTool != "" && c.FinalAnswerField == "" {
		return fmt.Errorf("final_answer_field is required when final_answer_tool is set")
	}
	return nil
}

// Save writes the config to disk as plain JSON.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		path, err := paths.ConfigFilePath()
		if err != nil {
			return err
		}
		c.filePath = path
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// FilePath returns the file the config was loaded from or will be saved to.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// GetPromptMarker returns the prompt marker literal.
func (c *Config) GetPromptMarker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PromptMarker
}

// SetPromptMarker overrides the prompt marker.
func (c *Config) SetPromptMarker(marker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PromptMarker = marker
}

// GetFinalAnswer returns the final-answer tool name and its result field.
func (c *Config) GetFinalAnswer() (tool, field string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.FinalAnswerTool, c.FinalAnswerField
}

// GetSocketPath returns the backend socket path, defaulting to parley.sock in
// the state directory.
func (c *Config) GetSocketPath() (string, error) {
	c.mu.RLock()
	p := c.SocketPath
	c.mu.RUnlock()
	if p != "" {
		return p, nil
	}
	dir, err := paths.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, socketFileName), nil
}

// SetSocketPath overrides the backend socket path.
func (c *Config) SetSocketPath(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SocketPath = p
}

// GetCallTimeout returns the synchronous call timeout.
func (c *Config) GetCallTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.CallTimeoutMS <= 0 {
		return DefaultCallTimeout
	}
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

// GetQueueSize returns the per-session event queue length.
func (c *Config) GetQueueSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.QueueSize <= 0 {
		return DefaultQueueSize
	}
	return c.QueueSize
}

// GetArgLimits returns the width and line limits for tool argument display.
func (c *Config) GetArgLimits() (width, lines int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ArgWidth, c.ArgLines
}

// GetDebug reports whether debug mode is on.
func (c *Config) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug
}

// SetDebug toggles debug mode.
func (c *Config) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debug = enabled
}

// GetToolProfilesPath returns the configured tools.yaml path, falling back to
// the default location in the config directory.
func (c *Config) GetToolProfilesPath() (string, error) {
	c.mu.RLock()
	p := c.ToolProfiles
	c.mu.RUnlock()
	if p != "" {
		return p, nil
	}
	return paths.ToolProfilesPath()
}
