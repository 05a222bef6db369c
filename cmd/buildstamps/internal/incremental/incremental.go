// Package incremental detects which source files changed since their stamps
// were last recorded for a target.
package incremental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/albertocavalcante/buildstamps/pkg/stamps"
)

// State classifies one file against its recorded stamp.
type State int

const (
	// StateUnchanged means the current stamp equals the recorded one.
	StateUnchanged State = iota
	// StateAdded means no stamp is recorded for the file.
	StateAdded
	// StateModified means the current stamp differs from the recorded one.
	StateModified
	// StateDeleted means a stamp is recorded but the file cannot be read.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateAdded:
		return "added"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stale reports whether the file needs a rebuild.
func (s State) Stale() bool {
	return s != StateUnchanged
}

// Tracker compares the files of one target against a stamps storage.
type Tracker struct {
	storage stamps.Storage
	scanner *Scanner
	target  stamps.Target
	logger  *slog.Logger
}

// NewTracker creates a tracker for target. scanner may be nil when only
// per-file operations are used.
func NewTracker(storage stamps.Storage, target stamps.Target, scanner *Scanner, logger *slog.Logger) *Tracker {
	return &Tracker{
		storage: storage,
		scanner: scanner,
		target:  target,
		logger:  log.OrDiscard(logger).With("target", string(target)),
	}
}

// Target returns the tracked target.
func (t *Tracker) Target() stamps.Target {
	return t.target
}

// Scanner returns the scanner that decides which files the tracker covers,
// or nil for a per-file tracker.
func (t *Tracker) Scanner() *Scanner {
	return t.scanner
}

// Classify compares file's current stamp with the recorded one.
func (t *Tracker) Classify(file string) (State, error) {
	prev, ok, err := t.storage.Get(t.target, file)
	if err != nil {
		return StateAdded, err
	}
	if !ok {
		return StateAdded, nil
	}

	cur, err := t.storage.Current(file)
	if errors.Is(err, stamps.ErrIOFailure) {
		return StateDeleted, nil
	}
	if err != nil {
		return StateModified, err
	}
	if !stamps.Equal(prev, cur) {
		t.logger.Debug("stamp changed", "file", file, "recorded", prev.String(), "current", cur.String())
		return StateModified, nil
	}
	return StateUnchanged, nil
}

// Status checks for changes without modifying state.
// Returns a ChangeSet describing what has changed since the last Refresh.
func (t *Tracker) Status(ctx context.Context) (*ChangeSet, error) {
	if t.scanner == nil {
		return nil, errors.New("tracker has no scanner")
	}

	files, err := t.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}

	cs := NewChangeSet()
	present := make(map[string]struct{}, len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		present[file] = struct{}{}

		state, err := t.Classify(file)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", file, err)
		}
		switch state {
		case StateAdded:
			cs.Added = append(cs.Added, t.rel(file))
		case StateModified, StateDeleted:
			// A file that vanished after the scan still counts as modified
			cs.Modified = append(cs.Modified, t.rel(file))
		}
	}

	recorded, err := t.storage.Files(t.target)
	if err != nil {
		return nil, fmt.Errorf("failed to list recorded files: %w", err)
	}
	for _, file := range recorded {
		if _, ok := present[file]; ok {
			continue
		}
		if !t.scanner.Matches(file) {
			continue
		}
		cs.Deleted = append(cs.Deleted, t.rel(file))
	}

	cs.sort()
	t.logger.Debug("status computed", "root", t.scanner.Root(),
		"added", len(cs.Added), "modified", len(cs.Modified), "deleted", len(cs.Deleted))
	return cs, nil
}

// Refresh records fresh stamps for every added or modified file and drops
// the records of deleted ones. It returns the changes it applied.
func (t *Tracker) Refresh(ctx context.Context) (*ChangeSet, error) {
	cs, err := t.Status(ctx)
	if err != nil {
		return nil, err
	}

	for _, rel := range cs.Stale() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file := t.abs(rel)
		err := stamps.Record(t.storage, t.target, file)
		if errors.Is(err, stamps.ErrIOFailure) {
			t.logger.Warn("file disappeared before it could be stamped", "file", file, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record %s: %w", file, err)
		}
	}

	if err := t.Forget(t.absAll(cs.Deleted)...); err != nil {
		return nil, err
	}

	t.logger.Info("stamps refreshed", "root", t.scanner.Root(), "changes", cs.TotalChanges())
	return cs, nil
}

// Record stores the current stamps of files.
func (t *Tracker) Record(files ...string) error {
	for _, file := range files {
		if err := stamps.Record(t.storage, t.target, file); err != nil {
			return fmt.Errorf("failed to record %s: %w", file, err)
		}
		t.logger.Debug("stamp recorded", "file", file)
	}
	return nil
}

// Forget removes the recorded stamps of files.
func (t *Tracker) Forget(files ...string) error {
	for _, file := range files {
		if err := t.storage.Remove(t.target, file); err != nil {
			return fmt.Errorf("failed to forget %s: %w", file, err)
		}
		t.logger.Debug("stamp removed", "file", file)
	}
	return nil
}

// HasState returns true if any stamp is recorded for the target.
func (t *Tracker) HasState() bool {
	return t.TrackedFileCount() > 0
}

// TrackedFileCount returns the number of files recorded for the target.
// Returns 0 on error.
func (t *Tracker) TrackedFileCount() int {
	files, err := t.storage.Files(t.target)
	if err != nil {
		return 0
	}
	return len(files)
}

func (t *Tracker) rel(file string) string {
	if t.scanner == nil {
		return file
	}
	rel, err := filepath.Rel(t.scanner.Root(), file)
	if err != nil {
		return file
	}
	return rel
}

func (t *Tracker) abs(rel string) string {
	if filepath.IsAbs(rel) || t.scanner == nil {
		return rel
	}
	return filepath.Join(t.scanner.Root(), rel)
}

func (t *Tracker) absAll(rels []string) []string {
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = t.abs(rel)
	}
	return out
}
