package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/albertocavalcante/buildstamps/internal/log"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "buildstamps.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".buildstamps"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "buildstamps"

// Environment variables read by Load.
const (
	EnvPortable      = "BUILDSTAMPS_PORTABLE_CACHES"
	EnvForceDownload = "BUILDSTAMPS_FORCE_DOWNLOAD"
	EnvCacheSource   = "BUILDSTAMPS_CACHE_SOURCE"
	EnvDataDir       = "BUILDSTAMPS_DATA_DIR"
	EnvOutOfRoot     = "BUILDSTAMPS_OUT_OF_ROOT"
	EnvRoots         = "BUILDSTAMPS_ROOTS"
	EnvVerbosity     = "BUILDSTAMPS_VERBOSITY"
)

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/buildstamps/config.toml)
//  3. Project config (.buildstamps/config.toml or buildstamps.toml)
//  4. Environment variables (BUILDSTAMPS_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	// Layer 2: Global user config
	if globalCfg := loadGlobalConfig(); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config from specified directory
	if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	// Layer 4: Environment variables
	applyEnvironmentVariables(cfg)

	return cfg
}

// loadGlobalConfig loads the global user configuration from ~/.config/buildstamps/config.toml.
func loadGlobalConfig() *Config {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	// Search up the directory tree for config files
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(path); cfg != nil {
				return cfg
			}
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// FindWorkspaceRoot returns the nearest directory at or above dir that holds
// a workspace marker or a project config, or dir itself if none does.
func FindWorkspaceRoot(dir string) string {
	current := dir
	for {
		if isWorkspaceRoot(current) {
			return current
		}
		for _, path := range GetProjectConfigPaths(current) {
			if _, err := os.Stat(path); err == nil {
				return current
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// isWorkspaceRoot checks if the directory is a workspace root (has .git, WORKSPACE, or MODULE.bazel).
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "WORKSPACE", "WORKSPACE.bazel", "MODULE.bazel"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. A missing file
// yields nil; a malformed one is logged and ignored.
func loadConfigFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		log.Warn("ignoring malformed config file", "path", path, "error", err)
		return nil
	}

	return &cfg
}

// applyEnvironmentVariables applies BUILDSTAMPS_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	applyBoolEnv(EnvPortable, &cfg.Stamps.Portable)
	applyBoolEnv(EnvForceDownload, &cfg.Stamps.ForceDownload)

	if v := os.Getenv(EnvCacheSource); v != "" {
		cfg.Stamps.CacheSource = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Stamps.DataDir = v
	}
	if v := os.Getenv(EnvOutOfRoot); v != "" {
		cfg.Stamps.OutOfRoot = strings.ToLower(strings.TrimSpace(v))
	}

	// BUILDSTAMPS_ROOTS: comma-separated NAME=PATH pairs
	if v := os.Getenv(EnvRoots); v != "" {
		roots, err := ParseRoots(v)
		if err != nil {
			log.Warn("ignoring malformed environment variable", "name", EnvRoots, "error", err)
		} else if len(roots) > 0 {
			cfg.Roots = roots
		}
	}

	if v := os.Getenv(EnvVerbosity); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.Verbosity = &n
		}
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
