package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/watch"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	target    string
	debounce  int
	languages []string
	record    bool
	verbose   bool
	json      bool
	noColor   bool
}

var watchCmd = &cobra.Command{
	Use:   "watch -t TARGET [DIR]",
	Short: "Report source files as their stamps go stale",
	Long: `Watches DIR (default: the workspace) for source file changes and reports
each changed file whose stamp no longer matches the one recorded for TARGET.

With --record, the fresh stamp is stored right after the file is reported, so
every edit is reported once.

Example output:

  $ buildstamps watch -t app

  buildstamps: watching /path/to/workspace (1,247 files stamped)
  buildstamps: languages: go, kotlin, java
  buildstamps: ready

  [14:32:15] ~ src/auth/login.kt stale (modified)

Press Ctrl+C to stop watching.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFlags.target, "target", "t", "",
		"Target whose recorded stamps are compared")
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 500,
		"Debounce window in milliseconds")
	watchCmd.Flags().StringSliceVar(&watchFlags.languages, "lang", nil,
		"Only watch specific languages (comma-separated)")
	watchCmd.Flags().BoolVar(&watchFlags.record, "record", false,
		"Record fresh stamps for reported files")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")
	_ = watchCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	var dir string
	if len(args) > 0 {
		dir = args[0]
	}
	tracker, err := s.tracker(watchFlags.target, dir, watchFlags.languages)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	languages := watchFlags.languages
	if len(languages) == 0 {
		languages = s.cfg.Scan.Languages
	}

	w, err := watch.New(watch.Config{
		Tracker:    tracker,
		LangFilter: languages,
		IgnoreDirs: s.cfg.Scan.IgnoreDirs,
		Debounce:   watchFlags.debounce,
		Record:     watchFlags.record,
		Writer:     cmd.OutOrStdout(),
		Verbose:    watchFlags.verbose,
		NoColor:    watchFlags.noColor,
		JSON:       watchFlags.json,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	// Run watch loop
	return w.Run(ctx)
}
