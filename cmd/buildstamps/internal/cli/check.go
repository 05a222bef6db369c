package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/albertocavalcante/buildstamps/pkg/stamps"
	"github.com/spf13/cobra"
)

var checkFlags struct {
	target   string
	json     bool
	exitCode bool
}

var checkCmd = &cobra.Command{
	Use:   "check -t TARGET FILE...",
	Short: "Report which input files of a target changed",
	Long: `Compares the current stamp of each FILE with the stamp recorded for
TARGET and reports whether the target must be rebuilt because of it.

A file is stale when no stamp is recorded for it, when its stamp changed, or
when it can no longer be read. Files outside every project root are always
stale under portable stamps with --out-of-root=skip.

The --exit-code flag exits with status 1 when any file is stale, for use in
scripts and CI.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkFlags.target, "target", "t", "",
		"Target whose recorded stamps are compared")
	checkCmd.Flags().BoolVar(&checkFlags.json, "json", false,
		"Output as JSON")
	checkCmd.Flags().BoolVar(&checkFlags.exitCode, "exit-code", false,
		"Exit with status 1 if any file is stale")
	_ = checkCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(checkCmd)
}

// CheckResult is the JSON output format for one file of buildstamps check.
type CheckResult struct {
	Path  string `json:"path"`
	Stale bool   `json:"stale"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
	files, err := canonicalFiles(args)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	tracker, err := s.fileTracker(checkFlags.target)
	if err != nil {
		return err
	}

	results := make([]CheckResult, 0, len(files))
	anyStale := false
	for _, file := range files {
		state, err := tracker.Classify(file)
		result := CheckResult{Path: file, Stale: state.Stale(), State: state.String()}
		if errors.Is(err, stamps.ErrUnrelativizablePath) {
			return fmt.Errorf("%s: %w", file, err)
		}
		if err != nil {
			// Unreadable stamps force a rebuild
			result.Stale = true
			result.Error = err.Error()
		}
		anyStale = anyStale || result.Stale
		results = append(results, result)
	}

	out := cmd.OutOrStdout()
	if checkFlags.json {
		if err := outputJSON(out, results); err != nil {
			return err
		}
	} else {
		printCheck(out, results)
	}

	if anyStale && checkFlags.exitCode {
		return exitError{code: 1}
	}
	return nil
}

func printCheck(w io.Writer, results []CheckResult) {
	for _, r := range results {
		switch {
		case r.Error != "":
			_, _ = fmt.Fprintf(w, "stale  %s (%s)\n", r.Path, r.Error)
		case r.Stale:
			_, _ = fmt.Fprintf(w, "stale  %s (%s)\n", r.Path, r.State)
		default:
			_, _ = fmt.Fprintf(w, "ok     %s\n", r.Path)
		}
	}
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// exitError ends the process with code without printing an error.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
