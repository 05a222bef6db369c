package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every recorded stamp",
	Long: `Wipes the stamps storage of the active strategy. Every target is
rebuilt from scratch afterwards.

Only the storage selected by --portable is wiped; the other strategy keeps
its own storage.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, _ []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	if err := s.stamps.Clean(); err != nil {
		return fmt.Errorf("failed to clean stamps: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s stamps in %s\n", s.stamps.Strategy(), s.stamps.StorageRoot())
	return nil
}
