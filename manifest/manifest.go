// Package manifest handles sysy.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "sysy.toml"

// Manifest represents a sysy.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project" json:"project"`
	Source  Source       `toml:"source" json:"source"`
	Run     RunConfig    `toml:"run" json:"run"`
	Cache   CacheConfig  `toml:"cache" json:"cache"`
	Log     LogConfig    `toml:"log" json:"log"`
	Server  ServerConfig `toml:"server" json:"server"`

	// Dir is the directory containing the sysy.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
}

// Source names the entry compilation unit.
type Source struct {
	Entry string `toml:"entry" json:"entry"`
}

// RunConfig holds interpreter settings.
type RunConfig struct {
	Input        string `toml:"input" json:"input"`
	MaxSteps     int    `toml:"max-steps" json:"max-steps"`
	MaxCallDepth int    `toml:"max-call-depth" json:"max-call-depth"`
	Trace        bool   `toml:"trace" json:"trace"`
}

// CacheConfig locates the compile cache database.
type CacheConfig struct {
	Path string `toml:"path" json:"path"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// ServerConfig configures sysy serve.
type ServerConfig struct {
	Address string `toml:"address" json:"address"`
}

// Defaults used when a manifest leaves a field unset.
const (
	DefaultEntry        = "main.sy"
	DefaultCachePath    = ".sysy/cache.db"
	DefaultAddress      = "localhost:8421"
	DefaultMaxCallDepth = 10000
)

// Default returns the configuration used when no sysy.toml is found.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
	if m.Server.Address == "" {
		m.Server.Address = DefaultAddress
	}
	if m.Run.MaxCallDepth == 0 {
		m.Run.MaxCallDepth = DefaultMaxCallDepth
	}
}

// Load parses and validates the sysy.toml file in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
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

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a sysy.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
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

// Resolve makes a manifest-relative path absolute. Empty and absolute
// paths are returned unchanged.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.Resolve(m.Source.Entry)
}

// CachePath returns the absolute path of the compile cache database.
func (m *Manifest) CachePath() string {
	return m.Resolve(m.Cache.Path)
}
