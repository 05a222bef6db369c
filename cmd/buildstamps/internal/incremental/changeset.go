package incremental

import (
	"path/filepath"
	"slices"
)

// ChangeSet lists the files whose stamps differ from the recorded ones.
// Paths are relative to the scanned root.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:    []string{},
		Modified: []string{},
		Deleted:  []string{},
	}
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Deleted) == 0
}

// TotalChanges returns the total number of changed files.
func (cs *ChangeSet) TotalChanges() int {
	if cs == nil {
		return 0
	}
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted)
}

// Stale returns the added and modified files, the ones that need a rebuild,
// sorted.
func (cs *ChangeSet) Stale() []string {
	if cs == nil {
		return nil
	}
	stale := make([]string, 0, len(cs.Added)+len(cs.Modified))
	stale = append(stale, cs.Added...)
	stale = append(stale, cs.Modified...)
	slices.Sort(stale)
	return stale
}

// AffectedDirs returns sorted unique directories containing changes.
func (cs *ChangeSet) AffectedDirs() []string {
	if cs == nil {
		return nil
	}

	dirs := make(map[string]struct{})

	for _, path := range cs.Added {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for _, path := range cs.Modified {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for _, path := range cs.Deleted {
		dirs[filepath.Dir(path)] = struct{}{}
	}

	result := make([]string, 0, len(dirs))
	for dir := range dirs {
		result = append(result, dir)
	}
	slices.Sort(result)
	return result
}

// sort sorts all slices for deterministic output.
func (cs *ChangeSet) sort() {
	if cs == nil {
		return
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Deleted)
}
