package stamps

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/albertocavalcante/buildstamps/internal/log"
)

// TimestampStorage records modification-time stamps keyed by absolute path.
//
// It never hashes or relativizes, so a check costs one stat. Two builds that
// finish within the filesystem's timestamp granularity can look unchanged,
// and copying the storage to another machine invalidates every key. Use
// ContentStorage when either matters.
type TimestampStorage struct {
	store  *tableStore
	logger *slog.Logger
}

var _ Storage = (*TimestampStorage)(nil)

// NewTimestampStorage returns a timestamp storage rooted at
// dataDir/timestamps. The directory is created on first use.
func NewTimestampStorage(dataDir string, logger *slog.Logger) *TimestampStorage {
	logger = log.OrDiscard(logger).With("strategy", StrategyTimestamp.String())
	root := filepath.Join(dataDir, TimestampDirName)
	return &TimestampStorage{
		store:  newTableStore(root, layoutMarker{Strategy: StrategyTimestamp.String(), Version: layoutVersion}, logger),
		logger: logger,
	}
}

// Strategy implements Storage.
func (s *TimestampStorage) Strategy() Strategy { return StrategyTimestamp }

// Root implements Storage.
func (s *TimestampStorage) Root() string { return s.store.root() }

// Current implements Storage.
func (s *TimestampStorage) Current(file string) (Stamp, error) {
	stamp, err := ComputeTimestamp(file)
	if err != nil {
		return nil, err
	}
	return stamp, nil
}

// Get implements Storage.
func (s *TimestampStorage) Get(target Target, file string) (Stamp, bool, error) {
	key, err := absoluteKey(file)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := s.store.get(string(target), key)
	if err != nil || !ok {
		return nil, false, err
	}
	stamp, err := decodeTimestamp(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrStorageCorruption, key, err)
	}
	s.logger.Log(context.Background(), log.LevelTrace, "stamp read", "target", target, "file", key, "stamp", stamp)
	return stamp, true, nil
}

// Put implements Storage.
func (s *TimestampStorage) Put(target Target, file string, stamp Stamp) error {
	ts, ok := stamp.(TimestampStamp)
	if !ok {
		return fmt.Errorf("%w: %T in timestamp storage", ErrStampKind, stamp)
	}
	key, err := absoluteKey(file)
	if err != nil {
		return err
	}
	s.logger.Log(context.Background(), log.LevelTrace, "stamp write", "target", target, "file", key, "stamp", ts)
	return s.store.put(string(target), key, ts.encode())
}

// Remove implements Storage.
func (s *TimestampStorage) Remove(target Target, file string) error {
	key, err := absoluteKey(file)
	if err != nil {
		return err
	}
	return s.store.remove(string(target), key)
}

// Files implements Storage.
func (s *TimestampStorage) Files(target Target) ([]string, error) {
	return s.store.keys(string(target))
}

// Wipe implements Storage.
func (s *TimestampStorage) Wipe() error {
	s.logger.Info("wiping stamps storage", "root", s.store.root())
	return s.store.wipe()
}

// Close implements Storage.
func (s *TimestampStorage) Close() error {
	return s.store.close()
}

// absoluteKey normalizes file for use as a timestamp key.
func absoluteKey(file string) (string, error) {
	if !filepath.IsAbs(file) {
		return "", fmt.Errorf("file %q is not an absolute path", file)
	}
	return filepath.Clean(file), nil
}
