// Package config loads the Lattice configuration file. The file is YAML and
// every field has a usable default, so a missing file is not an error: the
// zero configuration archives into ./data from ./sorted.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no explicit path is given.
const DefaultPath = "lattice.yaml"

// Config is the application configuration.
type Config struct {
	// DataDir is the root of the coordinate space: the block tree, the
	// allocator cursor, and the conversation index all live under it.
	DataDir string `yaml:"data_dir"`

	// ExportDir holds the raw export (chat.html, conversations.json,
	// assets.json and the attachment files referenced by them).
	ExportDir string `yaml:"export_dir"`

	// SortedDir holds one folder per conversation as produced by the sorter.
	SortedDir string `yaml:"sorted_dir"`

	// AttachmentPatterns are glob patterns selecting which attachment files
	// the sorter copies into conversation folders. Empty means all.
	AttachmentPatterns []string `yaml:"attachment_patterns"`

	// LookupOrder ranks multiple lookup matches: "insertion" (default) or
	// "alphabetical".
	LookupOrder string `yaml:"lookup_order"`

	// Playback selects the default restore view: "a" (dump all) or "s"
	// (step interactively).
	Playback string `yaml:"playback"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:     "data",
		ExportDir:   "GPTData",
		SortedDir:   "sorted",
		LookupOrder: "insertion",
		Playback:    "s",
	}
}

// Load reads the configuration at path, applying defaults for absent fields.
// A missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values and compiles the attachment patterns once to
// surface bad globs at startup rather than mid-store.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.LookupOrder {
	case "", "insertion", "alphabetical":
	default:
		return fmt.Errorf("lookup_order must be \"insertion\" or \"alphabetical\", got %q", c.LookupOrder)
	}
	switch c.Playback {
	case "", "a", "s":
	default:
		return fmt.Errorf("playback must be \"a\" or \"s\", got %q", c.Playback)
	}
	if _, err := c.CompilePatterns(); err != nil {
		return err
	}
	return nil
}

// CompilePatterns compiles the attachment glob patterns. A nil result means
// every attachment is included.
func (c *Config) CompilePatterns() ([]glob.Glob, error) {
	if len(c.AttachmentPatterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(c.AttachmentPatterns))
	for _, p := range c.AttachmentPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid attachment pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// CursorPath returns the allocator cursor file location.
func (c *Config) CursorPath() string {
	return filepath.Join(c.DataDir, "cursor")
}

// IndexPath returns the conversation index file location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "conversation_index.txt")
}

// BlocksDir returns the root of the coordinate-addressed block tree.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.DataDir, "blocks")
}
