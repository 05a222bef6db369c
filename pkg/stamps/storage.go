package stamps

import (
	"errors"
	"fmt"
	"strings"
)

// Target is the opaque namespace key of one compilation unit. Targets are
// issued by the build's target registry; a storage never validates them.
type Target string

// Strategy selects how files are stamped and keyed.
type Strategy int

const (
	// StrategyTimestamp stamps by modification time and length.
	StrategyTimestamp Strategy = iota
	// StrategyPortable stamps by content digest and length, with
	// relativized keys.
	StrategyPortable
)

// StrategyNone is reported by a session that never selected a strategy.
const StrategyNone Strategy = -1

func (s Strategy) String() string {
	switch s {
	case StrategyTimestamp:
		return "timestamp"
	case StrategyPortable:
		return "portable"
	case StrategyNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseStrategy parses "timestamp" or "portable".
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "timestamp", "timestamps":
		return StrategyTimestamp, nil
	case "portable", "content":
		return StrategyPortable, nil
	default:
		return 0, fmt.Errorf("unknown stamps strategy %q", name)
	}
}

// OutOfRootPolicy decides what the portable strategy does with files outside
// every configured project root.
type OutOfRootPolicy int

const (
	// OutOfRootSkip never persists such files; they always read as absent
	// and therefore always count as changed.
	OutOfRootSkip OutOfRootPolicy = iota
	// OutOfRootFail returns ErrUnrelativizablePath from Get, Put and Remove.
	OutOfRootFail
)

func (p OutOfRootPolicy) String() string {
	switch p {
	case OutOfRootSkip:
		return "skip"
	case OutOfRootFail:
		return "fail"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseOutOfRootPolicy parses "skip" or "fail". The empty string means skip.
func ParseOutOfRootPolicy(name string) (OutOfRootPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "skip":
		return OutOfRootSkip, nil
	case "fail":
		return OutOfRootFail, nil
	default:
		return 0, fmt.Errorf("unknown out-of-root policy %q", name)
	}
}

// Storage persists the stamp recorded for each (target, file) pair.
//
// Errors from Get, Put, Remove and Files wrap ErrStorageCorruption when the
// backing store is inconsistent; they are never swallowed.
type Storage interface {
	// Strategy reports which stamp variant the storage holds.
	Strategy() Strategy

	// Current computes the file's stamp now. It fails with ErrIOFailure if
	// the file cannot be read.
	Current(file string) (Stamp, error)

	// Get returns the recorded stamp. ok is false if nothing was recorded,
	// which callers treat exactly like "changed".
	Get(target Target, file string) (stamp Stamp, ok bool, err error)

	// Put records stamp, replacing any earlier record for the same key.
	Put(target Target, file string, stamp Stamp) error

	// Remove drops the record for the key, if any.
	Remove(target Target, file string) error

	// Files returns the absolute paths recorded for target, sorted.
	Files(target Target) ([]string, error)

	// Wipe deletes every record. It is safe on a new or empty storage.
	Wipe() error

	// Close flushes pending writes durably and releases resources. Calling
	// it again returns nil.
	Close() error

	// Root is the directory owned by the storage. It exists so the owner
	// can delete it after a failed Close.
	Root() string
}

// IsDirty reports whether file must be treated as changed for target: no
// stamp recorded, unreadable file, or a current stamp that differs.
func IsDirty(s Storage, target Target, file string) (bool, error) {
	prev, ok, err := s.Get(target, file)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}

	cur, err := s.Current(file)
	if err != nil {
		if errors.Is(err, ErrIOFailure) {
			return true, nil
		}
		return true, err
	}
	return !Equal(prev, cur), nil
}

// Record stores the current stamp of file for target. Call it after the
// file was compiled successfully.
func Record(s Storage, target Target, file string) error {
	cur, err := s.Current(file)
	if err != nil {
		return err
	}
	return s.Put(target, file, cur)
}
