// Package manifest handles rastal.toml project configuration. A
// rastal.yaml file with the same structure is accepted as well.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest file names, in lookup order.
const (
	TOMLFile = "rastal.toml"
	YAMLFile = "rastal.yaml"
)

// Manifest represents a rastal project configuration.
type Manifest struct {
	Project Project `toml:"project" yaml:"project"`
	Script  Script  `toml:"script" yaml:"script"`
	Run     Run     `toml:"run" yaml:"run"`
	Images  []Image `toml:"images" yaml:"images"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-"`

	// Path is the manifest file itself (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// Script locates the script and selects how it is compiled.
type Script struct {
	Path     string `toml:"path" yaml:"path"`
	Strategy string `toml:"strategy" yaml:"strategy"`
}

// Run configures execution.
type Run struct {
	TileWidth         int      `toml:"tile-width" yaml:"tile-width"`
	TileHeight        int      `toml:"tile-height" yaml:"tile-height"`
	Outside           *float64 `toml:"outside" yaml:"outside"`
	MaxLoopIterations int      `toml:"max-loop-iterations" yaml:"max-loop-iterations"`
	Journal           string   `toml:"journal" yaml:"journal"`
	Events            string   `toml:"events" yaml:"events"`
}

// Image binds one script name to a raster file. Order matters: it is the
// binding order of the script.
type Image struct {
	Name string `toml:"name" yaml:"name"`
	Role string `toml:"role" yaml:"role"` // source, destination or both
	Path string `toml:"path" yaml:"path"`

	// Output is where a name bound both ways is written; Path is read.
	Output string `toml:"output" yaml:"output"`

	// Shape of a destination created from scratch. Zero values fall back
	// to the first source.
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`
	Bands  int `toml:"bands" yaml:"bands"`
}

// Load parses the manifest in dir, preferring rastal.toml over
// rastal.yaml.
func Load(dir string) (*Manifest, error) {
	for _, name := range []string{TOMLFile, YAMLFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no %s or %s in %s: %w", TOMLFile, YAMLFile, dir, os.ErrNotExist)
}

// LoadFile parses one manifest file. The format follows the extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = toml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.Dir = filepath.Dir(m.Path)

	// Defaults
	if m.Script.Path == "" {
		m.Script.Path = "main.ras"
	}
	if m.Script.Strategy == "" {
		m.Script.Strategy = "bytecode"
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a manifest, then loads and
// returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		m, err := Load(dir)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the image table for duplicates, unknown roles and
// missing paths.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool)
	for i, img := range m.Images {
		switch {
		case img.Name == "":
			return fmt.Errorf("image %d has no name", i+1)
		case seen[img.Name]:
			return fmt.Errorf("image %q listed twice", img.Name)
		}
		seen[img.Name] = true
		if _, err := ParseRole(img.Role); err != nil {
			return fmt.Errorf("image %q: %w", img.Name, err)
		}
		if img.Path == "" {
			return fmt.Errorf("image %q has no path", img.Name)
		}
		if img.Width < 0 || img.Height < 0 || img.Bands < 0 {
			return fmt.Errorf("image %q: negative shape", img.Name)
		}
	}
	if m.Run.TileWidth < 0 || m.Run.TileHeight < 0 {
		return fmt.Errorf("negative tile size %dx%d", m.Run.TileWidth, m.Run.TileHeight)
	}
	return nil
}

// ScriptPath returns the absolute script path.
func (m *Manifest) ScriptPath() string {
	return m.resolve(m.Script.Path)
}

// JournalPath returns the absolute journal database path, or "" when
// no journal is configured.
func (m *Manifest) JournalPath() string {
	if m.Run.Journal == "" {
		return ""
	}
	return m.resolve(m.Run.Journal)
}

// EventsPath returns the absolute event stream path, or "".
func (m *Manifest) EventsPath() string {
	if m.Run.Events == "" {
		return ""
	}
	return m.resolve(m.Run.Events)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
