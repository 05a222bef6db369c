package stamps

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// Stamp is an immutable fingerprint of a file. The set of implementations is
// closed: TimestampStamp and ContentStamp.
type Stamp interface {
	// Strategy reports which storage strategy produced the stamp.
	Strategy() Strategy

	// Equal reports whether other denotes the same file state. Stamps of
	// different strategies are never equal.
	Equal(other Stamp) bool

	String() string

	encode() []byte
}

// Equal reports whether a and b denote the same file state. Two nil stamps
// are equal; a nil and a non-nil stamp are not.
func Equal(a, b Stamp) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// TimestampStamp is the last-modified time in Unix milliseconds plus the
// file length. Equality is exact; there is no tolerance window.
type TimestampStamp struct {
	ModTime int64
	Length  int64
}

const timestampStampSize = 16

// ComputeTimestamp stats path and returns its timestamp stamp.
func ComputeTimestamp(path string) (TimestampStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return TimestampStamp{}, ioFailure(path, err)
	}
	if info.IsDir() {
		return TimestampStamp{}, ioFailure(path, fmt.Errorf("is a directory"))
	}
	return TimestampStamp{
		ModTime: info.ModTime().UnixMilli(),
		Length:  info.Size(),
	}, nil
}

// Strategy implements Stamp.
func (TimestampStamp) Strategy() Strategy { return StrategyTimestamp }

// Equal implements Stamp.
func (s TimestampStamp) Equal(other Stamp) bool {
	o, ok := other.(TimestampStamp)
	return ok && s == o
}

func (s TimestampStamp) String() string {
	return fmt.Sprintf("%s/%d", time.UnixMilli(s.ModTime).UTC().Format(time.RFC3339Nano), s.Length)
}

func (s TimestampStamp) encode() []byte {
	buf := make([]byte, timestampStampSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(s.ModTime))
	binary.BigEndian.PutUint64(buf[8:16], uint64(s.Length))
	return buf
}

func decodeTimestamp(data []byte) (TimestampStamp, error) {
	if len(data) != timestampStampSize {
		return TimestampStamp{}, fmt.Errorf("timestamp stamp is %d bytes, want %d", len(data), timestampStampSize)
	}
	return TimestampStamp{
		ModTime: int64(binary.BigEndian.Uint64(data[0:8])),
		Length:  int64(binary.BigEndian.Uint64(data[8:16])),
	}, nil
}

// Digest is a 32-byte BLAKE3 content digest.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ContentStamp is the BLAKE3-256 digest of a file's bytes plus its length.
// It depends only on content, never on host, locale or timestamps.
type ContentStamp struct {
	Digest Digest
	Length int64
}

const contentStampSize = len(Digest{}) + 8

// ComputeContent streams path through BLAKE3 and returns its content stamp.
func ComputeContent(path string) (ContentStamp, error) {
	f, err := os.Open(path)
	if err != nil {
		return ContentStamp{}, ioFailure(path, err)
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return ContentStamp{}, ioFailure(path, err)
	}

	var s ContentStamp
	copy(s.Digest[:], h.Sum(nil))
	s.Length = n
	return s, nil
}

// ContentStampOf returns the content stamp of data.
func ContentStampOf(data []byte) ContentStamp {
	return ContentStamp{Digest: blake3.Sum256(data), Length: int64(len(data))}
}

// Strategy implements Stamp.
func (ContentStamp) Strategy() Strategy { return StrategyPortable }

// Equal implements Stamp.
func (s ContentStamp) Equal(other Stamp) bool {
	o, ok := other.(ContentStamp)
	return ok && s == o
}

func (s ContentStamp) String() string {
	return fmt.Sprintf("%s/%d", s.Digest, s.Length)
}

func (s ContentStamp) encode() []byte {
	buf := make([]byte, contentStampSize)
	copy(buf, s.Digest[:])
	binary.BigEndian.PutUint64(buf[len(s.Digest):], uint64(s.Length))
	return buf
}

func decodeContent(data []byte) (ContentStamp, error) {
	if len(data) != contentStampSize {
		return ContentStamp{}, fmt.Errorf("content stamp is %d bytes, want %d", len(data), contentStampSize)
	}
	var s ContentStamp
	copy(s.Digest[:], data)
	s.Length = int64(binary.BigEndian.Uint64(data[len(s.Digest):]))
	return s, nil
}
