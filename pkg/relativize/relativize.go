// Package relativize converts absolute filesystem paths to and from a
// machine-independent canonical form.
//
// A canonical path names a configured project root by its symbolic name and
// gives the remainder relative to that root with forward slashes:
//
//	/home/ci/work/app/src/a.txt  ->  $PROJECT$/src/a.txt
//
// Two machines that configure the same root names for different absolute
// directories produce identical canonical paths for the same logical file,
// which is what makes stamps computed on one machine usable on the other.
package relativize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// ErrUnrelativizablePath is returned for paths that lie outside every
// configured root, and for canonical paths naming an unknown root.
var ErrUnrelativizablePath = errors.New("path is outside all configured roots")

const marker = "$"

var rootNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Root is a named project root.
type Root struct {
	Name string
	Path string
}

// Relativizer maps paths under a fixed set of roots. It is immutable after
// construction and safe for concurrent use.
type Relativizer struct {
	roots  []Root // longest path first
	byName map[string]string
}

// New validates roots and returns a relativizer for them.
//
// Root paths must be absolute. Names must be unique, and no root may contain
// another: a file under nested roots would have two canonical forms, and the
// choice between them would depend on configuration order.
func New(roots ...Root) (*Relativizer, error) {
	r := &Relativizer{byName: make(map[string]string, len(roots))}

	for _, root := range roots {
		if !rootNamePattern.MatchString(root.Name) {
			return nil, fmt.Errorf("invalid root name %q", root.Name)
		}
		if !filepath.IsAbs(root.Path) {
			return nil, fmt.Errorf("root %s: path %q is not absolute", root.Name, root.Path)
		}
		if _, dup := r.byName[root.Name]; dup {
			return nil, fmt.Errorf("duplicate root name %q", root.Name)
		}
		clean := filepath.Clean(root.Path)
		for _, other := range r.roots {
			if contains(other.Path, clean) || contains(clean, other.Path) {
				return nil, fmt.Errorf("roots %s (%s) and %s (%s) overlap",
					other.Name, other.Path, root.Name, clean)
			}
		}
		r.byName[root.Name] = clean
		r.roots = append(r.roots, Root{Name: root.Name, Path: clean})
	}

	slices.SortFunc(r.roots, func(a, b Root) int {
		return len(b.Path) - len(a.Path)
	})
	return r, nil
}

// Roots returns the configured roots, longest path first.
func (r *Relativizer) Roots() []Root {
	return slices.Clone(r.roots)
}

// ToCanonical converts an absolute path to its canonical form. The path is
// cleaned first, so ToAbsolute(ToCanonical(p)) == filepath.Clean(p).
func (r *Relativizer) ToCanonical(absPath string) (string, error) {
	if !filepath.IsAbs(absPath) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrUnrelativizablePath, absPath)
	}
	clean := filepath.Clean(absPath)

	for _, root := range r.roots {
		if clean == root.Path {
			return marker + root.Name + marker, nil
		}
		if !contains(root.Path, clean) {
			continue
		}
		rel, err := filepath.Rel(root.Path, clean)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnrelativizablePath, absPath, err)
		}
		return marker + root.Name + marker + "/" + filepath.ToSlash(rel), nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnrelativizablePath, absPath)
}

// ToAbsolute converts a canonical path back to an absolute path under the
// locally configured root of the same name.
func (r *Relativizer) ToAbsolute(canonical string) (string, error) {
	name, rest, ok := parse(canonical)
	if !ok {
		return "", fmt.Errorf("%w: malformed canonical path %q", ErrUnrelativizablePath, canonical)
	}
	base, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown root %q in %q", ErrUnrelativizablePath, name, canonical)
	}
	if rest == "" {
		return base, nil
	}

	abs := filepath.Join(base, filepath.FromSlash(rest))
	if !contains(base, abs) {
		return "", fmt.Errorf("%w: %q escapes root %s", ErrUnrelativizablePath, canonical, name)
	}
	return abs, nil
}

// parse splits "$NAME$/rest" into its root name and remainder.
func parse(canonical string) (name, rest string, ok bool) {
	if !strings.HasPrefix(canonical, marker) {
		return "", "", false
	}
	body := canonical[len(marker):]
	end := strings.Index(body, marker)
	if end <= 0 {
		return "", "", false
	}
	name = body[:end]
	rest = body[end+len(marker):]
	if rest == "" {
		return name, "", true
	}
	if !strings.HasPrefix(rest, "/") {
		return "", "", false
	}
	return name, rest[1:], true
}

// contains reports whether path is dir itself or lies below it.
func contains(dir, path string) bool {
	if dir == path {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
