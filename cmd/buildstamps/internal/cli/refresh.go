package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshFlags struct {
	target    string
	languages []string
	verbose   bool
}

var refreshCmd = &cobra.Command{
	Use:   "refresh -t TARGET [DIR]",
	Short: "Record the current stamps of every source file",
	Long: `Scans DIR (default: the workspace), records fresh stamps for TARGET for
every new or modified source file and removes the stamps of deleted files.

Run it after a successful build of TARGET. 'buildstamps status' then reports
only changes made after this point.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVarP(&refreshFlags.target, "target", "t", "",
		"Target the stamps are recorded for")
	refreshCmd.Flags().StringSliceVar(&refreshFlags.languages, "lang", nil,
		"Only consider specific languages (comma-separated)")
	refreshCmd.Flags().BoolVar(&refreshFlags.verbose, "verbose", false,
		"Show individual file changes")
	_ = refreshCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	var dir string
	if len(args) > 0 {
		dir = args[0]
	}
	tracker, err := s.tracker(refreshFlags.target, dir, refreshFlags.languages)
	if err != nil {
		return err
	}

	cs, err := tracker.Refresh(commandContext(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cs.IsEmpty() {
		_, _ = fmt.Fprintf(out, "%s is up to date (%d files)\n", refreshFlags.target, tracker.TrackedFileCount())
		return nil
	}

	_, _ = fmt.Fprintf(out, "%s: recorded %d file(s), forgot %d file(s)\n",
		refreshFlags.target, len(cs.Stale()), len(cs.Deleted))
	if refreshFlags.verbose {
		printChanges(out, cs)
	}
	return nil
}
