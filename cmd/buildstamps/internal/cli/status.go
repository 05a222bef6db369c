package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/incremental"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	target    string
	languages []string
	verbose   bool
	json      bool
}

var statusCmd = &cobra.Command{
	Use:   "status -t TARGET [DIR]",
	Short: "Show which source files changed since they were recorded",
	Long: `Shows the status of the source files under DIR (default: the workspace)
against the stamps recorded for TARGET.

Files without a stamp are new, files whose stamp changed are modified, and
recorded files that no longer exist are deleted. Nothing is written; run
'buildstamps refresh' to record the current state.

The --verbose flag shows individual file changes (new, modified, deleted).
The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlags.target, "target", "t", "",
		"Target whose recorded stamps are compared")
	statusCmd.Flags().StringSliceVar(&statusFlags.languages, "lang", nil,
		"Only consider specific languages (comma-separated)")
	statusCmd.Flags().BoolVar(&statusFlags.verbose, "verbose", false,
		"Show individual file changes")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")
	_ = statusCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for buildstamps status.
type StatusOutput struct {
	Target        string   `json:"target"`
	Strategy      string   `json:"strategy"`
	Stale         bool     `json:"stale"`
	StaleDirs     []string `json:"stale_dirs"`
	NewFiles      []string `json:"new_files,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	DeletedFiles  []string `json:"deleted_files,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	var dir string
	if len(args) > 0 {
		dir = args[0]
	}
	tracker, err := s.tracker(statusFlags.target, dir, statusFlags.languages)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	strategy := s.stamps.Strategy().String()

	// Check if any stamps exist
	if !tracker.HasState() {
		if statusFlags.json {
			return outputJSON(out, StatusOutput{
				Target:    statusFlags.target,
				Strategy:  strategy,
				Stale:     true,
				StaleDirs: []string{"."},
				Error:     "no stamps recorded",
			})
		}
		_, _ = fmt.Fprintf(out, "No stamps recorded for %s. Run 'buildstamps refresh -t %s' to record them.\n",
			statusFlags.target, statusFlags.target)
		return nil
	}

	cs, err := tracker.Status(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to detect staleness: %w", err)
	}

	if statusFlags.json {
		return outputJSON(out, StatusOutput{
			Target:        statusFlags.target,
			Strategy:      strategy,
			Stale:         !cs.IsEmpty(),
			StaleDirs:     cs.AffectedDirs(),
			NewFiles:      cs.Added,
			ModifiedFiles: cs.Modified,
			DeletedFiles:  cs.Deleted,
		})
	}

	if cs.IsEmpty() {
		_, _ = fmt.Fprintf(out, "%s is up to date\n", statusFlags.target)
		return nil
	}

	staleDirs := cs.AffectedDirs()
	_, _ = fmt.Fprintf(out, "Stale directories (%d):\n", len(staleDirs))
	for _, d := range staleDirs {
		_, _ = fmt.Fprintf(out, "  %s\n", d)
	}

	if statusFlags.verbose {
		printChanges(out, cs)
	}

	_, _ = fmt.Fprintf(out, "\nRun 'buildstamps refresh -t %s' after rebuilding to record the changes\n", statusFlags.target)
	return nil
}

func printChanges(w io.Writer, cs *incremental.ChangeSet) {
	if len(cs.Added) > 0 {
		_, _ = fmt.Fprintf(w, "\nNew files (%d):\n", len(cs.Added))
		for _, f := range cs.Added {
			_, _ = fmt.Fprintf(w, "  + %s\n", f)
		}
	}

	if len(cs.Modified) > 0 {
		_, _ = fmt.Fprintf(w, "\nModified files (%d):\n", len(cs.Modified))
		for _, f := range cs.Modified {
			_, _ = fmt.Fprintf(w, "  ~ %s\n", f)
		}
	}

	if len(cs.Deleted) > 0 {
		_, _ = fmt.Fprintf(w, "\nDeleted files (%d):\n", len(cs.Deleted))
		for _, f := range cs.Deleted {
			_, _ = fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}

// commandContext returns the command's context, or a background context when
// the command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
