package incremental

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/langs"
)

// ScanConfig configures the scanner.
type ScanConfig struct {
	Root       string
	Languages  []string // nil = all languages
	IgnoreDirs []string // Additional dirs to ignore
}

// Scanner lists the tracked source files under a root.
type Scanner struct {
	root       string
	ignoreDirs []string
	extensions map[string]bool
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScanConfig) *Scanner {
	// Build extension filter from shared config
	extensions := langs.ExtensionSet(cfg.Languages)

	// Combine default and custom ignored dirs
	ignoreDirs := slices.Clone(langs.IgnoredDirs)
	ignoreDirs = append(ignoreDirs, cfg.IgnoreDirs...)

	return &Scanner{
		root:       filepath.Clean(cfg.Root),
		ignoreDirs: ignoreDirs,
		extensions: extensions,
	}
}

// Root returns the directory the scanner walks.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the filesystem and returns the absolute paths of tracked files,
// sorted.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != s.root && s.ignoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !s.extensions[filepath.Ext(path)] {
			return nil
		}

		files = append(files, path)
		return nil
	})

	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// Matches reports whether path would be returned by Scan if it existed: it
// lies under the root, outside ignored directories, with a tracked extension.
func (s *Scanner) Matches(path string) bool {
	if !s.extensions[filepath.Ext(path)] {
		return false
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || !filepath.IsLocal(rel) {
		return false
	}
	dirs := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	for _, dir := range dirs {
		if dir != "." && s.ignoredDir(dir) {
			return false
		}
	}
	return true
}

// ignoredDir reports whether a directory name matches an ignored prefix.
func (s *Scanner) ignoredDir(name string) bool {
	for _, prefix := range s.ignoreDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
