package config

import (
	_ "embed"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tools.yaml
var defaultToolsYAML []byte

// DefaultPlaceholder is shown for tools without a profile.
const DefaultPlaceholder = "..."

// ToolProfile describes how a streamed tool call is previewed before its
// arguments are complete.
type ToolProfile struct {
	Key         string `yaml:"key"`
	Placeholder string `yaml:"placeholder"`
	Label       string `yaml:"label,omitempty"`
}

// ToolProfiles maps tool names to their profiles.
type ToolProfiles map[string]ToolProfile

type toolsFile struct {
	Tools ToolProfiles `yaml:"tools"`
}

// Lookup returns the profile for name. Unknown tools get a profile with no
// key and the default placeholder.
func (p ToolProfiles) Lookup(name string) ToolProfile {
	prof, ok := p[name]
	if !ok {
		prof = ToolProfile{Placeholder: DefaultPlaceholder}
	}
	if prof.Label == "" {
		prof.Label = name
	}
	return prof
}

// DefaultToolProfiles returns the built-in profiles.
func DefaultToolProfiles() ToolProfiles {
	profiles, err := ParseToolProfiles(defaultToolsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded tools.yaml is invalid: %v", err))
	}
	return profiles
}

// ParseToolProfiles parses a tools.yaml document.
func ParseToolProfiles(data []byte) (ToolProfiles, error) {
	var f toolsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tool profiles: %w", err)
	}
	for name := range f.Tools {
		if name == "" {
			return nil, fmt.Errorf("tool profile with empty name")
		}
	}
	if f.Tools == nil {
		f.Tools = ToolProfiles{}
	}
	return f.Tools, nil
}

// LoadToolProfiles reads a tools.yaml from path and merges it over the
// built-in profiles. A missing file yields the built-ins.
func LoadToolProfiles(path string) (ToolProfiles, error) {
	profiles := DefaultToolProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profiles, nil
		}
		return nil, fmt.Errorf("failed to read tool profiles: %w", err)
	}

	overrides, err := ParseToolProfiles(data)
	if err != nil {
		return nil, err
	}
	maps.Copy(profiles, overrides)
	return profiles, nil
}
