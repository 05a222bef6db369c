package cachearchive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an archive's tar stream is compressed.
type Compression uint8

const (
	// CompressionNone is a plain tar stream.
	CompressionNone Compression = iota

	// CompressionZstd compresses with zstd at the default level. Stamp
	// tables are mostly path strings and compress well.
	CompressionZstd

	// CompressionLZ4 trades ratio for speed using the LZ4 frame format.
	CompressionLZ4
)

// String returns the human-readable name of a compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// CompressionForPath picks a compression from the archive file name:
// ".tar", ".tar.zst"/".tzst" or ".tar.lz4".
func CompressionForPath(path string) (Compression, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return CompressionZstd, nil
	case strings.HasSuffix(lower, ".tar.lz4"):
		return CompressionLZ4, nil
	case strings.HasSuffix(lower, ".tar"):
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unsupported archive extension: %q (want .tar, .tar.zst or .tar.lz4)", path)
	}
}

// compressor wraps w; closing the result flushes compressed output but does
// not close w.
func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

// decompressor wraps r. The returned close function releases decoder
// resources.
func decompressor(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec, dec.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
