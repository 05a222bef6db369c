package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/buildstamps/pkg/cachearchive"
	"github.com/albertocavalcante/buildstamps/pkg/stamps"
	"github.com/spf13/cobra"
)

// errNotPortable is returned by the cache commands under timestamp stamps,
// whose records are meaningless on another machine.
var errNotPortable = errors.New("portable stamps are not enabled (use --portable or stamps.portable = true)")

var exportCmd = &cobra.Command{
	Use:   "export ARCHIVE",
	Short: "Export the portable stamps as an archive",
	Long: `Writes the portable stamps storage to ARCHIVE so another machine can reuse
it with 'buildstamps import' or --force-download.

The compression is chosen by the archive extension: .tar, .tar.zst (or
.tzst) and .tar.lz4.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import ARCHIVE",
	Short: "Replace the portable stamps with an archive",
	Long: `Replaces the portable stamps storage with the contents of ARCHIVE, as
produced by 'buildstamps export'. This is the same as running any command
with --force-download --cache-source ARCHIVE.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	archive, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid archive path %s: %w", args[0], err)
	}
	if _, err := cachearchive.CompressionForPath(archive); err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	if s.stamps.Strategy() != stamps.StrategyPortable {
		return errors.Join(errNotPortable, s.Close())
	}

	// Closing compacts the log so the archive holds one record per entry
	root := s.stamps.StorageRoot()
	if err := s.Close(); err != nil {
		return err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("no portable stamps recorded in %s", root)
	}

	if err := cachearchive.Export(root, archive); err != nil {
		return fmt.Errorf("failed to export portable stamps: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", root, archive)
	return nil
}

func runImport(cmd *cobra.Command, args []string) (err error) {
	archive, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid archive path %s: %w", args[0], err)
	}

	workspace, cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if !cfg.IsPortable() {
		return errNotPortable
	}
	force := true
	cfg.Stamps.ForceDownload = &force
	cfg.Stamps.CacheSource = archive

	s, err := startSession(workspace, cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s into %s\n", archive, s.stamps.StorageRoot())
	return nil
}
