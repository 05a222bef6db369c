package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/detect"
	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/incremental"
	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/langs"
	"github.com/albertocavalcante/buildstamps/pkg/stamps"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// Config configures the watcher.
type Config struct {
	// Tracker checks and records stamps. Its scanner decides which files
	// are watched.
	Tracker *incremental.Tracker

	LangFilter []string // languages shown in the ready banner (nil = detect)
	IgnoreDirs []string // Additional dirs to ignore
	Debounce   int      // debounce window in milliseconds

	// Record stores fresh stamps for stale files as soon as they are
	// reported, so each edit is reported once.
	Record bool

	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// Watcher reports files whose stamps go stale as they change on disk.
type Watcher struct {
	config     Config
	fsWatcher  *fsnotify.Watcher
	tracker    *incremental.Tracker
	scanner    *incremental.Scanner
	debouncer  *Debouncer
	logger     *Logger
	ignoreDirs map[string]bool

	// stampsMu serializes storage access; flushes run on timer goroutines
	stampsMu sync.Mutex
}

// New creates a new watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Tracker == nil || cfg.Tracker.Scanner() == nil {
		return nil, errors.New("watch requires a tracker with a scanner")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := NewLogger(LoggerConfig{
		Writer:  cfg.Writer,
		Verbose: cfg.Verbose,
		NoColor: cfg.NoColor,
		JSON:    cfg.JSON,
	})

	return &Watcher{
		config:     cfg,
		fsWatcher:  fsWatcher,
		tracker:    cfg.Tracker,
		scanner:    cfg.Tracker.Scanner(),
		logger:     logger,
		ignoreDirs: langs.IgnoreDirSet(cfg.IgnoreDirs),
	}, nil
}

// Run starts the watch loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	debounceWindow := time.Duration(w.config.Debounce) * time.Millisecond
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounce
	}
	w.debouncer = NewDebouncer(debounceWindow, w.handleChangedFiles)
	defer w.debouncer.Stop()

	root := w.scanner.Root()
	if err := w.addRecursive(root); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	languages := w.config.LangFilter
	if len(languages) == 0 {
		detected, err := detect.Languages(ctx, root, w.config.IgnoreDirs)
		if err != nil {
			w.logger.Error(fmt.Errorf("language detection failed: %w", err))
		}
		languages = detected
	}

	w.stampsMu.Lock()
	fileCount := w.tracker.TrackedFileCount()
	w.stampsMu.Unlock()
	w.logger.Ready(fileCount, languages, root)

	// Main event loop
	for {
		select {
		case <-ctx.Done():
			w.debouncer.FlushNow()
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Log permission errors in verbose mode, skip silently otherwise
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && w.ignored(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w for %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
			return nil
		}

		return nil
	})
}

func (w *Watcher) ignored(name string) bool {
	for prefix := range w.ignoreDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New directories need their own watches
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.ignored(filepath.Base(path)) {
				return
			}
			if err := w.addRecursive(path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
			return
		}
	}

	if !w.scanner.Matches(path) {
		return
	}

	var changeType ChangeType
	switch {
	case event.Has(fsnotify.Create):
		changeType = ChangeAdded
	case event.Has(fsnotify.Write):
		changeType = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		changeType = ChangeDeleted
	default:
		return // Ignore chmod events
	}

	w.logger.FileChanged(w.rel(path), changeType)
	w.debouncer.Add(path)
}

// handleChangedFiles is called when the debouncer flushes. It compares each
// file against its recorded stamp and reports the stale ones.
func (w *Watcher) handleChangedFiles(files []string) {
	if len(files) == 0 {
		return
	}

	w.stampsMu.Lock()
	defer w.stampsMu.Unlock()

	slices.Sort(files)
	w.logger.Checking(len(files))

	for _, file := range files {
		state, err := w.tracker.Classify(file)
		if err != nil {
			w.logger.Error(fmt.Errorf("failed to check %s: %w", w.rel(file), err))
			continue
		}
		if !state.Stale() {
			continue
		}
		w.logger.Stale(w.rel(file), state)

		if !w.config.Record {
			continue
		}
		if state == incremental.StateDeleted {
			err = w.tracker.Forget(file)
		} else {
			err = w.tracker.Record(file)
		}
		if errors.Is(err, stamps.ErrIOFailure) {
			// Gone again before it could be stamped; the next event reports it
			continue
		}
		if err != nil {
			w.logger.Error(err)
			continue
		}
		w.logger.Recorded(w.rel(file))
	}
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.scanner.Root(), path)
	if err != nil {
		return path
	}
	return rel
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")
