package stamps

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/albertocavalcante/buildstamps/pkg/cachearchive"
	"github.com/albertocavalcante/buildstamps/pkg/relativize"
)

// ErrNotOpen is returned by ProjectStamps methods outside the open state.
var ErrNotOpen = errors.New("project stamps are not open")

// Options configures a ProjectStamps session. Every field is read once by
// New; changing the options afterwards has no effect on an open session.
type Options struct {
	// DataDir is the build's data directory. The storage root is a
	// strategy-specific subdirectory of it.
	DataDir string

	// Strategy selects timestamp or portable stamps for the whole session.
	Strategy Strategy

	// Relativizer maps paths for the portable strategy. Required when
	// Strategy is StrategyPortable, ignored otherwise.
	Relativizer *relativize.Relativizer

	// OutOfRoot decides how the portable strategy treats files outside
	// every project root.
	OutOfRoot OutOfRootPolicy

	// ForceDownload replaces the portable storage root with the contents of
	// CacheSource before the storage is first used.
	ForceDownload bool

	// CacheSource is an archive produced by cachearchive.Export.
	CacheSource string

	Logger *slog.Logger
}

type state int

const (
	stateUninitialized state = iota
	stateOpen
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProjectStamps owns the stamps storage of one build session.
//
// The zero value is uninitialized; New returns an open session and Close
// moves it to the terminal closed state.
type ProjectStamps struct {
	state   state
	storage Storage
	guarded *guardedStorage
	logger  *slog.Logger
}

// New selects the storage strategy from opts and opens a session. With
// opts.ForceDownload under the portable strategy, the storage root is
// replaced by the archive at opts.CacheSource first.
func New(opts Options) (*ProjectStamps, error) {
	if opts.DataDir == "" {
		return nil, errors.New("stamps data directory is required")
	}
	logger := log.OrDiscard(opts.Logger)

	var storage Storage
	switch opts.Strategy {
	case StrategyTimestamp:
		if opts.ForceDownload {
			logger.Warn("force download of portable caches ignored for timestamp stamps")
		}
		storage = NewTimestampStorage(opts.DataDir, logger)
	case StrategyPortable:
		cs, err := NewContentStorage(opts.DataDir, opts.Relativizer, opts.OutOfRoot, logger)
		if err != nil {
			return nil, err
		}
		if opts.ForceDownload {
			if err := importCache(opts.CacheSource, cs.Root(), logger); err != nil {
				return nil, err
			}
		}
		storage = cs
	default:
		return nil, fmt.Errorf("unknown stamps strategy %s", opts.Strategy)
	}

	logger.Info("stamps storage selected", "strategy", opts.Strategy.String(), "root", storage.Root())

	p := &ProjectStamps{
		state:   stateOpen,
		storage: storage,
		logger:  logger,
	}
	p.guarded = &guardedStorage{inner: storage, logger: logger, close: p.Close}
	return p, nil
}

func importCache(source, root string, logger *slog.Logger) error {
	if source == "" {
		return errors.New("force download requested but no portable cache source is configured")
	}
	logger.Info("importing portable stamps cache", "source", source, "root", root)
	if err := cachearchive.Import(source, root); err != nil {
		return fmt.Errorf("failed to import portable cache %s: %w", source, err)
	}
	return nil
}

// Strategy reports the strategy selected at construction, or StrategyNone
// for an uninitialized session. A closed session keeps reporting the
// strategy it ran with.
func (p *ProjectStamps) Strategy() Strategy {
	if p.storage == nil {
		return StrategyNone
	}
	return p.storage.Strategy()
}

// StorageRoot returns the root directory of the active storage, or "" for
// an uninitialized session.
func (p *ProjectStamps) StorageRoot() string {
	if p.storage == nil {
		return ""
	}
	return p.storage.Root()
}

// Storage returns the active storage. It is valid only while the session
// is open.
//
// The returned storage recovers from corruption: when a lookup or write
// hits ErrStorageCorruption, the storage root is wiped and the operation is
// retried once on the empty store, so a corrupt store degrades into a full
// rebuild instead of an error.
func (p *ProjectStamps) Storage() (Storage, error) {
	if p.state != stateOpen {
		return nil, fmt.Errorf("%w (state %s)", ErrNotOpen, p.state)
	}
	return p.guarded, nil
}

// Clean wipes every stamp, forcing a full rebuild. The session stays open.
func (p *ProjectStamps) Clean() error {
	if p.state != stateOpen {
		return fmt.Errorf("%w (state %s)", ErrNotOpen, p.state)
	}
	p.logger.Info("cleaning stamps storage", "root", p.storage.Root())
	return p.storage.Wipe()
}

// Close flushes the storage and ends the session. Calling it again, or on an
// uninitialized session, returns nil.
//
// If the storage fails to close, the failure is logged and the whole storage
// root is deleted so the next session starts empty. The build that just
// finished is unaffected, and nil is returned. Only a failure to delete the
// root is returned, wrapped in ErrRecoveryFailure.
func (p *ProjectStamps) Close() error {
	if p.state != stateOpen {
		return nil
	}
	p.state = stateClosed

	err := p.storage.Close()
	if err == nil {
		p.logger.Info("stamps storage closed", "root", p.storage.Root())
		return nil
	}

	root := p.storage.Root()
	p.logger.Error("failed to close stamps storage; deleting it", "root", root, "error", err)
	if rmErr := os.RemoveAll(root); rmErr != nil {
		p.logger.Error("failed to delete stamps storage", "root", root, "error", rmErr)
		return fmt.Errorf("%w: %s: %w", ErrRecoveryFailure, root, rmErr)
	}
	p.logger.Warn("stamps storage deleted; the next build starts from scratch", "root", root)
	return nil
}

// guardedStorage turns ErrStorageCorruption into a wipe-and-retry. Closing
// it closes the owning session, so close failures always reach the
// session's recovery.
type guardedStorage struct {
	inner  Storage
	logger *slog.Logger
	close  func() error
}

var _ Storage = (*guardedStorage)(nil)

func (g *guardedStorage) reset(op string, cause error) error {
	g.logger.Warn("stamps storage is corrupt; resetting it", "op", op, "root", g.inner.Root(), "error", cause)
	if err := g.inner.Wipe(); err != nil {
		g.logger.Error("failed to reset corrupt stamps storage", "root", g.inner.Root(), "error", err)
		return fmt.Errorf("%w: %s: %w", ErrRecoveryFailure, g.inner.Root(), err)
	}
	return nil
}

func (g *guardedStorage) Strategy() Strategy { return g.inner.Strategy() }

func (g *guardedStorage) Root() string { return g.inner.Root() }

func (g *guardedStorage) Current(file string) (Stamp, error) { return g.inner.Current(file) }

func (g *guardedStorage) Get(target Target, file string) (Stamp, bool, error) {
	stamp, ok, err := g.inner.Get(target, file)
	if errors.Is(err, ErrStorageCorruption) {
		if rerr := g.reset("get", err); rerr != nil {
			return nil, false, rerr
		}
		return g.inner.Get(target, file)
	}
	return stamp, ok, err
}

func (g *guardedStorage) Put(target Target, file string, stamp Stamp) error {
	err := g.inner.Put(target, file, stamp)
	if errors.Is(err, ErrStorageCorruption) {
		if rerr := g.reset("put", err); rerr != nil {
			return rerr
		}
		return g.inner.Put(target, file, stamp)
	}
	return err
}

func (g *guardedStorage) Remove(target Target, file string) error {
	err := g.inner.Remove(target, file)
	if errors.Is(err, ErrStorageCorruption) {
		if rerr := g.reset("remove", err); rerr != nil {
			return rerr
		}
		return g.inner.Remove(target, file)
	}
	return err
}

func (g *guardedStorage) Files(target Target) ([]string, error) {
	files, err := g.inner.Files(target)
	if errors.Is(err, ErrStorageCorruption) {
		if rerr := g.reset("files", err); rerr != nil {
			return nil, rerr
		}
		return g.inner.Files(target)
	}
	return files, err
}

func (g *guardedStorage) Wipe() error { return g.inner.Wipe() }

func (g *guardedStorage) Close() error { return g.close() }
