// Package manifest handles amber.toml host configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents an amber.toml host configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Runtime Runtime `toml:"runtime"`
	Store   Store   `toml:"store"`

	// Dir is the directory containing the amber.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime configures execution limits and entry selection.
type Runtime struct {
	// MaxInstructions bounds a single Exec call; 0 means unlimited.
	MaxInstructions uint64 `toml:"max-instructions"`
	// Entry names the public function to run instead of the main entry.
	Entry string `toml:"entry"`
}

// Store configures the module database.
type Store struct {
	Path string `toml:"path"`
}

// Load parses an amber.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "amber.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Store.Path == "" {
		m.Store.Path = "amber.db"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an amber.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "amber.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
