// Package manifest handles chef.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a chef.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`

	// Dir is the directory containing the chef.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where the program entry point lives.
type Source struct {
	Entry string `toml:"entry"`
}

// Load reads and validates the chef.toml in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "chef.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.Dir = dir

	if m.Project.Name == "" {
		return nil, fmt.Errorf("%s: missing project.name", path)
	}
	if m.Source.Entry == "" {
		m.Source.Entry = "main.chef"
	}
	return &m, nil
}

// EntryPath resolves the program entry point relative to the manifest.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Source.Entry) {
		return m.Source.Entry
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}
