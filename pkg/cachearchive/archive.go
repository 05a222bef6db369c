// Package cachearchive packs a stamps storage root into a single archive
// file and unpacks it again, so a portable stamps cache produced on one
// machine can seed the build of another.
package cachearchive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Export writes the contents of root to archivePath. The compression is
// chosen from the archive extension. The archive is written to a temporary
// file first and renamed into place.
func Export(root, archivePath string) error {
	compression, err := CompressionForPath(archivePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat cache root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache root %s is not a directory", root)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmpPath := archivePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	writeErr := writeArchive(f, root, compression)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write archive: %w", writeErr)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename archive: %w", err)
	}
	return nil
}

func writeArchive(w io.Writer, root string, compression Compression) error {
	buffered := bufio.NewWriter(w)
	cw, err := compressor(buffered, compression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name + "/",
				Mode:     0o755,
			})
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasSuffix(name, ".tmp") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		// Modification times are left zero so identical caches produce
		// identical archives.
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o644,
			Size:     info.Size(),
		}); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		_ = src.Close()
		return err
	})
	if walkErr != nil {
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}
	return buffered.Flush()
}

// Import replaces root with the contents of archivePath. The archive is
// unpacked into a sibling temporary directory first, so a failed import
// leaves the existing root untouched.
func Import(archivePath, root string) error {
	compression, err := CompressionForPath(archivePath)
	if err != nil {
		return err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	parent := filepath.Dir(root)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create cache parent directory: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".import-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := extract(bufio.NewReader(f), staging, compression); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	if err := os.RemoveAll(root); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("failed to remove existing cache root: %w", err)
	}
	if err := os.Rename(staging, root); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("failed to move imported cache into place: %w", err)
	}
	return nil
}

func extract(r io.Reader, dest string, compression Compression) error {
	dr, release, err := decompressor(r, compression)
	if err != nil {
		return err
	}
	defer release()

	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return fmt.Errorf("archive entry %q escapes the cache root", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		default:
			return fmt.Errorf("archive entry %q has unsupported type %q", hdr.Name, hdr.Typeflag)
		}
	}
}
