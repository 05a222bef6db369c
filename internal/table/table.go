// Package table implements a small append-friendly on-disk key/value table.
//
// The table lives in one directory and is backed by a single log file. Every
// mutation appends one checksummed frame; opening the table replays the log
// into memory and closing it compacts the live entries into a fresh log. Keys
// are (namespace, path) pairs and values are opaque byte strings.
//
// Log layout:
//
//	header  "BSTB" version(1 byte)
//	frame   length(uint32 BE) xxhash64(uint64 BE) payload(CBOR record)
//
// A Table is not safe for concurrent use.
package table

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/cespare/xxhash/v2"
)

const (
	// FormatVersion is written after the magic bytes of every log.
	FormatVersion = 1

	frameHeaderSize = 12
	// maxPayload bounds a single frame; anything larger is treated as a
	// corrupt length field rather than allocated.
	maxPayload = 16 << 20
)

var magic = []byte("BSTB")

var (
	// ErrCorrupt is returned when the log cannot be replayed consistently.
	ErrCorrupt = errors.New("table log is corrupt")

	// ErrClosed is returned by operations on a closed table.
	ErrClosed = errors.New("table is closed")

	// ErrTooLarge is returned by Put for an entry whose encoded record
	// exceeds the frame size limit. Nothing is written.
	ErrTooLarge = errors.New("table entry is too large")
)

// Key identifies one entry.
type Key struct {
	Namespace string
	Path      string
}

// Options configures a table.
type Options struct {
	// Dir is the directory owned by the table. It is created on first use.
	Dir string

	// Name is the log file name inside Dir. Defaults to "stamps.log".
	Name string

	Logger *slog.Logger
}

// Table is an append-only log replayed into an in-memory map.
type Table struct {
	dir    string
	path   string
	logger *slog.Logger

	file    *os.File
	entries map[Key][]byte
	opened  bool
	closed  bool
	// appended counts frames written since the last compaction.
	appended int
}

// New returns a table for opts.Dir. Nothing touches the disk until the
// first operation.
func New(opts Options) *Table {
	name := opts.Name
	if name == "" {
		name = "stamps.log"
	}
	return &Table{
		dir:    opts.Dir,
		path:   filepath.Join(opts.Dir, name),
		logger: log.OrDiscard(opts.Logger),
	}
}

// Dir returns the directory owned by the table.
func (t *Table) Dir() string {
	return t.dir
}

// Get returns the value stored for key.
func (t *Table) Get(key Key) ([]byte, bool, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, false, err
	}
	v, ok := t.entries[key]
	return v, ok, nil
}

// Put stores value for key, superseding any earlier value. Writing the value
// already stored appends nothing.
func (t *Table) Put(key Key, value []byte) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if old, ok := t.entries[key]; ok && bytes.Equal(old, value) {
		return nil
	}
	if err := t.append(record{Op: opPut, Namespace: key.Namespace, Path: key.Path, Value: value}); err != nil {
		return err
	}
	t.entries[key] = slices.Clone(value)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (t *Table) Delete(key Key) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if _, ok := t.entries[key]; !ok {
		return nil
	}
	if err := t.append(record{Op: opDelete, Namespace: key.Namespace, Path: key.Path}); err != nil {
		return err
	}
	delete(t.entries, key)
	return nil
}

// Paths returns the sorted paths stored under namespace.
func (t *Table) Paths(namespace string) ([]string, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	var paths []string
	for k := range t.entries {
		if k.Namespace == namespace {
			paths = append(paths, k.Path)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Len returns the number of live entries.
func (t *Table) Len() (int, error) {
	if err := t.ensureOpen(); err != nil {
		return 0, err
	}
	return len(t.entries), nil
}

// Wipe deletes the table directory and leaves an empty table that is
// recreated on next use. It is safe on a table that was never opened.
func (t *Table) Wipe() error {
	if t.closed {
		return ErrClosed
	}
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
	t.opened = false
	t.entries = nil
	t.appended = 0
	if err := os.RemoveAll(t.dir); err != nil {
		return fmt.Errorf("failed to remove table directory: %w", err)
	}
	t.logger.Debug("table wiped", "dir", t.dir)
	return nil
}

// Close compacts the live entries into a fresh log and releases the file.
// Calling Close more than once returns nil.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if !t.opened {
		return nil
	}

	compactErr := t.compact()
	closeErr := t.file.Close()
	t.file = nil
	if compactErr != nil {
		return compactErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close table log: %w", closeErr)
	}
	return nil
}

// ensureOpen lazily creates the directory and replays the log.
func (t *Table) ensureOpen() error {
	if t.closed {
		return ErrClosed
	}
	if t.opened {
		return nil
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	f, err := os.OpenFile(t.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open table log: %w", err)
	}

	entries, end, err := replay(f)
	if err != nil {
		_ = f.Close()
		return err
	}

	if end == 0 {
		if _, err := f.Write(header()); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write table header: %w", err)
		}
		end = int64(len(magic) + 1)
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to seek table log: %w", err)
	}

	t.file = f
	t.entries = entries
	t.opened = true
	t.logger.Debug("table opened", "path", t.path, "entries", len(entries))
	return nil
}

// append writes one frame at the end of the log.
func (t *Table) append(r record) error {
	payload, err := encodeRecord(r)
	if err != nil {
		return err
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: %d bytes for %s in %s (limit %d)", ErrTooLarge, len(payload), r.Path, r.Namespace, maxPayload)
	}
	if _, err := t.file.Write(frame(payload)); err != nil {
		return fmt.Errorf("failed to append to table log: %w", err)
	}
	t.appended++
	return nil
}

// compact rewrites the log with one frame per live entry, then swaps it in
// with a rename (atomic on POSIX).
func (t *Table) compact() error {
	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})

	tmpPath := t.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create compacted log: %w", err)
	}

	w := bufio.NewWriter(tmp)
	writeErr := func() error {
		if _, err := w.Write(header()); err != nil {
			return err
		}
		for _, k := range keys {
			payload, err := encodeRecord(record{Op: opPut, Namespace: k.Namespace, Path: k.Path, Value: t.entries[k]})
			if err != nil {
				return err
			}
			if _, err := w.Write(frame(payload)); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		return tmp.Sync()
	}()
	closeErr := tmp.Close()

	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write compacted log: %w", writeErr)
	}

	if err := os.Rename(tmpPath, t.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace table log: %w", err)
	}

	t.logger.Debug("table compacted", "path", t.path, "entries", len(keys), "appended", t.appended)
	t.appended = 0
	return nil
}

func header() []byte {
	return append(slices.Clone(magic), FormatVersion)
}

func frame(payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(buf[4:12], xxhash.Sum64(payload))
	copy(buf[frameHeaderSize:], payload)
	return buf
}

// replay reads the whole log and returns the live entries and the offset
// just past the last valid frame. An empty file yields offset 0.
func replay(f *os.File) (map[Key][]byte, int64, error) {
	entries := make(map[Key][]byte)

	r := bufio.NewReader(f)
	head := make([]byte, len(magic)+1)
	n, err := io.ReadFull(r, head)
	if err == io.EOF && n == 0 {
		return entries, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if !bytes.Equal(head[:len(magic)], magic) {
		return nil, 0, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if head[len(magic)] != FormatVersion {
		return nil, 0, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, head[len(magic)])
	}
	offset := int64(len(head))

	var fh [frameHeaderSize]byte
	for {
		n, err := io.ReadFull(r, fh[:])
		if err == io.EOF && n == 0 {
			return entries, offset, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: truncated frame header at offset %d", ErrCorrupt, offset)
		}

		size := binary.BigEndian.Uint32(fh[0:4])
		sum := binary.BigEndian.Uint64(fh[4:12])
		if size > maxPayload {
			return nil, 0, fmt.Errorf("%w: frame at offset %d claims %d bytes", ErrCorrupt, offset, size)
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated frame at offset %d", ErrCorrupt, offset)
		}
		if xxhash.Sum64(payload) != sum {
			return nil, 0, fmt.Errorf("%w: checksum mismatch at offset %d", ErrCorrupt, offset)
		}

		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: frame at offset %d: %v", ErrCorrupt, offset, err)
		}

		key := Key{Namespace: rec.Namespace, Path: rec.Path}
		switch rec.Op {
		case opPut:
			entries[key] = rec.Value
		case opDelete:
			delete(entries, key)
		default:
			return nil, 0, fmt.Errorf("%w: unknown op %d at offset %d", ErrCorrupt, rec.Op, offset)
		}

		offset += int64(frameHeaderSize) + int64(size)
	}
}
