// Package detect reports which languages a source tree contains.
//
// Detection is by file extension only (see langs.Extensions) and skips the
// directories scanning skips, so the result names exactly the languages whose
// files status, refresh and watch would track.
package detect

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/langs"
)

// Languages returns the sorted languages with at least one file under root.
// ignoreDirs extends langs.IgnoredDirs.
func Languages(ctx context.Context, root string, ignoreDirs []string) ([]string, error) {
	ignored := slices.Concat(langs.IgnoredDirs, ignoreDirs)
	found := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			for _, prefix := range ignored {
				if strings.HasPrefix(name, prefix) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if lang, ok := langs.ForExtension(filepath.Ext(path)); ok {
			found[lang] = true
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(found))
	for lang := range found {
		result = append(result, lang)
	}
	slices.Sort(result)

	return result, nil
}
