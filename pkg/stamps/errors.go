package stamps

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/buildstamps/internal/table"
	"github.com/albertocavalcante/buildstamps/pkg/relativize"
)

var (
	// ErrIOFailure means a file could not be read while computing its stamp.
	// Callers treat the file as changed.
	ErrIOFailure = errors.New("cannot read file")

	// ErrUnrelativizablePath means a file lies outside every configured
	// project root under the portable strategy.
	ErrUnrelativizablePath = relativize.ErrUnrelativizablePath

	// ErrStorageCorruption means the backing store could not be opened, read
	// or flushed consistently.
	ErrStorageCorruption = errors.New("stamps storage is corrupt")

	// ErrRecoveryFailure means the storage root could not be deleted while
	// recovering from corruption.
	ErrRecoveryFailure = errors.New("failed to recover stamps storage")

	// ErrClosed is returned by a storage or facade that has been closed.
	ErrClosed = errors.New("stamps storage is closed")

	// ErrStampKind is returned when a stamp of one strategy is written to a
	// storage of the other.
	ErrStampKind = errors.New("stamp does not match storage strategy")
)

// storageError classifies a backing-table failure.
func storageError(op string, err error) error {
	if errors.Is(err, table.ErrClosed) {
		return ErrClosed
	}
	if errors.Is(err, table.ErrTooLarge) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageCorruption, op, err)
}

func ioFailure(path string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrIOFailure, path, err)
}
