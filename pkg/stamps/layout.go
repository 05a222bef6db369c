package stamps

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/albertocavalcante/buildstamps/internal/table"
)

const (
	// TimestampDirName is the storage root of the timestamp strategy,
	// relative to the data directory.
	TimestampDirName = "timestamps"

	// ContentDirName is the storage root of the portable strategy, relative
	// to the data directory.
	ContentDirName = "content-stamps"

	layoutFile    = "format.toml"
	layoutVersion = 1
)

// layoutMarker records which strategy wrote a storage root. A root written
// by another strategy or format version is wiped before use.
type layoutMarker struct {
	Strategy string `toml:"strategy"`
	Version  int    `toml:"version"`
	Digest   string `toml:"digest,omitempty"`
}

// tableStore is the persistence shared by both strategies: a table plus the
// layout marker of its root.
type tableStore struct {
	want   layoutMarker
	table  *table.Table
	logger *slog.Logger

	checked bool
	closed  bool
}

func newTableStore(root string, want layoutMarker, logger *slog.Logger) *tableStore {
	logger = log.OrDiscard(logger)
	return &tableStore{
		want:   want,
		table:  table.New(table.Options{Dir: root, Logger: logger}),
		logger: logger,
	}
}

// root is the directory owned by the table.
func (s *tableStore) root() string { return s.table.Dir() }

// prepare makes sure the root was written by this strategy, wiping it
// otherwise, and writes the marker for a fresh root.
func (s *tableStore) prepare() error {
	if s.closed {
		return ErrClosed
	}
	if s.checked {
		return nil
	}

	markerPath := filepath.Join(s.root(), layoutFile)
	var have layoutMarker
	_, err := toml.DecodeFile(markerPath, &have)
	switch {
	case err == nil && have == s.want:
		s.checked = true
		return nil
	case err == nil:
		s.logger.Warn("stamps storage has a different layout; wiping it",
			"root", s.root(), "found", have.Strategy, "found_version", have.Version,
			"want", s.want.Strategy, "want_version", s.want.Version)
		if err := s.table.Wipe(); err != nil {
			return storageError("wipe foreign layout", err)
		}
	case errors.Is(err, os.ErrNotExist):
		if entries, _ := os.ReadDir(s.root()); len(entries) > 0 {
			s.logger.Warn("stamps storage has no layout marker; wiping it", "root", s.root())
			if err := s.table.Wipe(); err != nil {
				return storageError("wipe unmarked root", err)
			}
		}
	default:
		s.logger.Warn("unreadable layout marker; wiping stamps storage", "root", s.root(), "error", err)
		if err := s.table.Wipe(); err != nil {
			return storageError("wipe unreadable layout", err)
		}
	}

	if err := writeMarker(s.root(), s.want); err != nil {
		return storageError("write layout marker", err)
	}
	s.checked = true
	return nil
}

func writeMarker(root string, m layoutMarker) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(root, layoutFile))
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *tableStore) get(ns, key string) ([]byte, bool, error) {
	if err := s.prepare(); err != nil {
		return nil, false, err
	}
	v, ok, err := s.table.Get(table.Key{Namespace: ns, Path: key})
	if err != nil {
		return nil, false, storageError("get", err)
	}
	return v, ok, nil
}

func (s *tableStore) put(ns, key string, value []byte) error {
	if err := s.prepare(); err != nil {
		return err
	}
	if err := s.table.Put(table.Key{Namespace: ns, Path: key}, value); err != nil {
		return storageError("put", err)
	}
	return nil
}

func (s *tableStore) remove(ns, key string) error {
	if err := s.prepare(); err != nil {
		return err
	}
	if err := s.table.Delete(table.Key{Namespace: ns, Path: key}); err != nil {
		return storageError("remove", err)
	}
	return nil
}

func (s *tableStore) keys(ns string) ([]string, error) {
	if err := s.prepare(); err != nil {
		return nil, err
	}
	keys, err := s.table.Paths(ns)
	if err != nil {
		return nil, storageError("list", err)
	}
	return keys, nil
}

func (s *tableStore) wipe() error {
	s.checked = false
	if err := s.table.Wipe(); err != nil {
		return storageError("wipe", err)
	}
	return nil
}

func (s *tableStore) close() error {
	s.closed = true
	if s.checked {
		if n, err := s.table.Len(); err == nil {
			s.logger.Debug("closing stamps table", "root", s.root(), "entries", n)
		}
	}
	if err := s.table.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorageCorruption, err)
	}
	return nil
}
