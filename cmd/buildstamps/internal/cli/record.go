package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var recordFlags struct {
	target string
}

var recordCmd = &cobra.Command{
	Use:   "record -t TARGET FILE...",
	Short: "Record the current stamps of input files",
	Long: `Stores the current stamp of each FILE for TARGET. Run it after TARGET
was built successfully so the next check compares against these inputs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecord,
}

var forgetFlags struct {
	target string
}

var forgetCmd = &cobra.Command{
	Use:   "forget -t TARGET FILE...",
	Short: "Remove the recorded stamps of input files",
	Long: `Removes the stamps recorded for each FILE under TARGET, for example after
the file was removed from the target's inputs. Forgetting a file that has no
stamp is not an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runForget,
}

func init() {
	recordCmd.Flags().StringVarP(&recordFlags.target, "target", "t", "",
		"Target the stamps are recorded for")
	_ = recordCmd.MarkFlagRequired("target")

	forgetCmd.Flags().StringVarP(&forgetFlags.target, "target", "t", "",
		"Target the stamps are removed from")
	_ = forgetCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(recordCmd, forgetCmd)
}

func runRecord(cmd *cobra.Command, args []string) (err error) {
	files, err := canonicalFiles(args)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	tracker, err := s.fileTracker(recordFlags.target)
	if err != nil {
		return err
	}
	if err := tracker.Record(files...); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "recorded %d file(s) for %s\n", len(files), recordFlags.target)
	return nil
}

func runForget(cmd *cobra.Command, args []string) (err error) {
	files, err := canonicalFiles(args)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	tracker, err := s.fileTracker(forgetFlags.target)
	if err != nil {
		return err
	}
	if err := tracker.Forget(files...); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "forgot %d file(s) for %s\n", len(files), forgetFlags.target)
	return nil
}
