package stamps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/albertocavalcante/buildstamps/pkg/relativize"
)

// ContentStorage records content-digest stamps keyed by relativized path.
//
// Because neither keys nor stamps depend on where the project is checked out
// or on file timestamps, the storage root can be shared as a build cache
// between machines that configure the same root names. Checking a file costs
// a full read of it.
type ContentStorage struct {
	store       *tableStore
	relativizer *relativize.Relativizer
	policy      OutOfRootPolicy
	logger      *slog.Logger
}

var _ Storage = (*ContentStorage)(nil)

// NewContentStorage returns a portable storage rooted at
// dataDir/content-stamps. The directory is created on first use.
func NewContentStorage(dataDir string, relativizer *relativize.Relativizer, policy OutOfRootPolicy, logger *slog.Logger) (*ContentStorage, error) {
	if relativizer == nil {
		return nil, errors.New("portable stamps storage requires a path relativizer")
	}
	logger = log.OrDiscard(logger).With("strategy", StrategyPortable.String())
	root := filepath.Join(dataDir, ContentDirName)
	marker := layoutMarker{Strategy: StrategyPortable.String(), Version: layoutVersion, Digest: "blake3-256"}
	return &ContentStorage{
		store:       newTableStore(root, marker, logger),
		relativizer: relativizer,
		policy:      policy,
		logger:      logger,
	}, nil
}

// Strategy implements Storage.
func (s *ContentStorage) Strategy() Strategy { return StrategyPortable }

// Root implements Storage.
func (s *ContentStorage) Root() string { return s.store.root() }

// Current implements Storage.
func (s *ContentStorage) Current(file string) (Stamp, error) {
	stamp, err := ComputeContent(file)
	if err != nil {
		return nil, err
	}
	return stamp, nil
}

// Get implements Storage. Under OutOfRootSkip a file outside every root
// reads as absent.
func (s *ContentStorage) Get(target Target, file string) (Stamp, bool, error) {
	key, skip, err := s.canonical(file)
	if err != nil || skip {
		return nil, false, err
	}
	data, ok, err := s.store.get(string(target), key)
	if err != nil || !ok {
		return nil, false, err
	}
	stamp, err := decodeContent(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrStorageCorruption, key, err)
	}
	s.logger.Log(context.Background(), log.LevelTrace, "stamp read", "target", target, "file", key, "stamp", stamp)
	return stamp, true, nil
}

// Put implements Storage. Under OutOfRootSkip a file outside every root is
// not persisted.
func (s *ContentStorage) Put(target Target, file string, stamp Stamp) error {
	cs, ok := stamp.(ContentStamp)
	if !ok {
		return fmt.Errorf("%w: %T in portable storage", ErrStampKind, stamp)
	}
	key, skip, err := s.canonical(file)
	if err != nil || skip {
		return err
	}
	s.logger.Log(context.Background(), log.LevelTrace, "stamp write", "target", target, "file", key, "stamp", cs)
	return s.store.put(string(target), key, cs.encode())
}

// Remove implements Storage.
func (s *ContentStorage) Remove(target Target, file string) error {
	key, skip, err := s.canonical(file)
	if err != nil || skip {
		return err
	}
	return s.store.remove(string(target), key)
}

// Files implements Storage. Records whose root is not configured on this
// machine are left out.
func (s *ContentStorage) Files(target Target) ([]string, error) {
	keys, err := s.store.keys(string(target))
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(keys))
	for _, key := range keys {
		abs, err := s.relativizer.ToAbsolute(key)
		if err != nil {
			s.logger.Debug("skipping record with unknown root", "target", target, "key", key, "error", err)
			continue
		}
		files = append(files, abs)
	}
	slices.Sort(files)
	return files, nil
}

// Wipe implements Storage.
func (s *ContentStorage) Wipe() error {
	s.logger.Info("wiping stamps storage", "root", s.store.root())
	return s.store.wipe()
}

// Close implements Storage.
func (s *ContentStorage) Close() error {
	return s.store.close()
}

// canonical relativizes file. skip is true when the file is outside every
// root and the policy says to ignore it.
func (s *ContentStorage) canonical(file string) (key string, skip bool, err error) {
	key, err = s.relativizer.ToCanonical(file)
	if err == nil {
		return key, false, nil
	}
	if errors.Is(err, relativize.ErrUnrelativizablePath) && s.policy == OutOfRootSkip {
		s.logger.Debug("file outside project roots is not tracked", "file", file)
		return "", true, nil
	}
	return "", false, err
}
