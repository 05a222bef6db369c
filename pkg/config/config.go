// Package config provides configuration management for buildstamps.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/buildstamps/config.toml)
//  3. Project config (.buildstamps/config.toml or buildstamps.toml)
//  4. Environment variables (BUILDSTAMPS_*)
//  5. CLI flags (highest priority)
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Config is the main configuration struct for buildstamps.
type Config struct {
	// Stamps configures the stamps storage.
	Stamps StampsConfig `toml:"stamps"`

	// Roots are the named project roots used to relativize paths for
	// portable stamps.
	Roots []RootConfig `toml:"roots"`

	// Scan configures which files status, refresh and watch consider.
	Scan ScanConfig `toml:"scan"`

	// Log configures logging defaults. The -v and --log-format flags win.
	Log LogConfig `toml:"log"`
}

// StampsConfig holds the storage settings.
type StampsConfig struct {
	// Portable selects content-hash stamps with relativized keys instead of
	// modification-time stamps.
	Portable *bool `toml:"portable"`

	// ForceDownload replaces the portable storage with CacheSource before
	// the first build step.
	ForceDownload *bool `toml:"force_download"`

	// CacheSource is the archive imported by ForceDownload.
	CacheSource string `toml:"cache_source"`

	// DataDir is the build's data directory. Relative paths are resolved
	// against the workspace directory.
	DataDir string `toml:"data_dir"`

	// OutOfRoot is "skip" or "fail".
	OutOfRoot string `toml:"out_of_root"`
}

// RootConfig is one named project root.
type RootConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// ScanConfig controls workspace scanning.
type ScanConfig struct {
	// Languages limits scanning to these languages. Empty means all known
	// languages.
	Languages []string `toml:"languages"`

	// IgnoreDirs are directory names skipped in addition to the built-in
	// list.
	IgnoreDirs []string `toml:"ignore_dirs"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Verbosity *int   `toml:"verbosity"`
	Format    string `toml:"format"`
}

// DefaultDataDir is the data directory used when none is configured.
const DefaultDataDir = ".buildstamps/data"

// DefaultRootName is the root name given to the workspace directory when no
// roots are configured.
const DefaultRootName = "PROJECT"

// NewConfig creates a new Config with built-in defaults.
// By default, timestamp stamps are used and out-of-root files are skipped.
func NewConfig() *Config {
	falseVal := false
	verbosity := 1
	return &Config{
		Stamps: StampsConfig{
			Portable:      &falseVal,
			ForceDownload: &falseVal,
			DataDir:       DefaultDataDir,
			OutOfRoot:     "skip",
		},
		Scan: ScanConfig{
			Languages:  []string{},
			IgnoreDirs: []string{},
		},
		Log: LogConfig{
			Verbosity: &verbosity,
			Format:    "text",
		},
	}
}

// IsPortable reports whether portable stamps are enabled.
func (c *Config) IsPortable() bool {
	return c.Stamps.Portable != nil && *c.Stamps.Portable
}

// IsForceDownload reports whether the portable cache must be downloaded.
func (c *Config) IsForceDownload() bool {
	return c.Stamps.ForceDownload != nil && *c.Stamps.ForceDownload
}

// ResolveDataDir returns the data directory as an absolute path, resolving a
// relative setting against workspace.
func (c *Config) ResolveDataDir(workspace string) string {
	dir := c.Stamps.DataDir
	if dir == "" {
		dir = DefaultDataDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workspace, dir)
	}
	return filepath.Clean(dir)
}

// ResolveCacheSource returns the portable cache archive path, resolving a
// relative setting against workspace. It returns "" when none is set.
func (c *Config) ResolveCacheSource(workspace string) string {
	src := c.Stamps.CacheSource
	if src == "" || filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(workspace, src)
}

// ResolveRoots returns the configured roots with relative paths resolved
// against workspace. With no roots configured, workspace itself becomes the
// single root named DefaultRootName.
func (c *Config) ResolveRoots(workspace string) []RootConfig {
	if len(c.Roots) == 0 {
		return []RootConfig{{Name: DefaultRootName, Path: filepath.Clean(workspace)}}
	}
	roots := make([]RootConfig, 0, len(c.Roots))
	for _, r := range c.Roots {
		path := r.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workspace, path)
		}
		roots = append(roots, RootConfig{Name: r.Name, Path: filepath.Clean(path)})
	}
	return roots
}

// Validate checks values that the loader cannot check while decoding.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Stamps.OutOfRoot) {
	case "", "skip", "fail":
	default:
		return fmt.Errorf("stamps.out_of_root must be \"skip\" or \"fail\", got %q", c.Stamps.OutOfRoot)
	}
	seen := make(map[string]bool, len(c.Roots))
	for _, r := range c.Roots {
		if r.Name == "" || r.Path == "" {
			return fmt.Errorf("root %q: name and path are required", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("root %q is configured twice", r.Name)
		}
		seen[r.Name] = true
	}
	if c.IsForceDownload() && c.IsPortable() && c.Stamps.CacheSource == "" {
		return fmt.Errorf("stamps.force_download requires stamps.cache_source")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// IsLanguageEnabled reports whether files of lang are scanned.
func (c *Config) IsLanguageEnabled(lang string) bool {
	if len(c.Scan.Languages) == 0 {
		return true
	}
	return slices.Contains(c.Scan.Languages, lang)
}

// ParseRoots parses a comma-separated "NAME=PATH" list.
func ParseRoots(s string) ([]RootConfig, error) {
	var roots []RootConfig
	for _, part := range splitAndTrim(s) {
		root, err := ParseRoot(part)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	return roots, nil
}

// ParseRoot parses a single "NAME=PATH" pair.
func ParseRoot(s string) (RootConfig, error) {
	name, path, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	path = strings.TrimSpace(path)
	if !ok || name == "" || path == "" {
		return RootConfig{}, fmt.Errorf("invalid root %q: want NAME=PATH", s)
	}
	return RootConfig{Name: name, Path: path}, nil
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Merge stamps config
	if other.Stamps.Portable != nil {
		c.Stamps.Portable = other.Stamps.Portable
	}
	if other.Stamps.ForceDownload != nil {
		c.Stamps.ForceDownload = other.Stamps.ForceDownload
	}
	if other.Stamps.CacheSource != "" {
		c.Stamps.CacheSource = other.Stamps.CacheSource
	}
	if other.Stamps.DataDir != "" {
		c.Stamps.DataDir = other.Stamps.DataDir
	}
	if other.Stamps.OutOfRoot != "" {
		c.Stamps.OutOfRoot = other.Stamps.OutOfRoot
	}

	// Roots are replaced as a whole, never merged by name
	if len(other.Roots) > 0 {
		c.Roots = slices.Clone(other.Roots)
	}

	// Merge scan config
	if len(other.Scan.Languages) > 0 {
		c.Scan.Languages = other.Scan.Languages
	}
	if len(other.Scan.IgnoreDirs) > 0 {
		c.Scan.IgnoreDirs = append(c.Scan.IgnoreDirs, other.Scan.IgnoreDirs...)
	}

	// Merge log config
	if other.Log.Verbosity != nil {
		c.Log.Verbosity = other.Log.Verbosity
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
