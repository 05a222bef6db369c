// Package cli implements the buildstamps command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity int
	logFormat string

	workspace     string
	dataDir       string
	portable      bool
	roots         []string
	outOfRoot     string
	forceDownload bool
	cacheSource   string
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buildstamps",
	Short: "Track which build inputs changed",
	Long: `Buildstamps records a stamp for every input file of a build target and
reports which inputs changed since the target was last built.

Two stamp strategies are available. Timestamp stamps compare modification
time and size; they are fast but only valid on the machine that wrote them.
Portable stamps hash file contents and key files by root-relative paths, so
a stamps cache built on one machine can be reused on another.

Settings come from buildstamps.toml, BUILDSTAMPS_* environment variables and
the flags below, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "buildstamps %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&globalFlags.verbosity, "verbosity", "v", log.VerbosityWarn,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	flags.StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
	flags.StringVarP(&globalFlags.workspace, "workspace", "C", "",
		"Workspace directory (default: nearest workspace above the current directory)")
	flags.StringVar(&globalFlags.dataDir, "data-dir", "",
		"Build data directory holding the stamps storage")
	flags.BoolVar(&globalFlags.portable, "portable", false,
		"Use portable content stamps instead of timestamps")
	flags.StringArrayVar(&globalFlags.roots, "root", nil,
		"Project root as NAME=PATH for portable stamps (repeatable)")
	flags.StringVar(&globalFlags.outOfRoot, "out-of-root", "",
		"Handling of files outside every root with portable stamps (skip, fail)")
	flags.BoolVar(&globalFlags.forceDownload, "force-download", false,
		"Replace the portable stamps with the cache source before use")
	flags.StringVar(&globalFlags.cacheSource, "cache-source", "",
		"Portable stamps archive (.tar, .tar.zst, .tar.lz4) used by --force-download")

	// Hook to apply flags before command runs
	cobra.OnInitialize(initLogging)
}

// initLogging applies CLI flags to the logger.
// This runs after flags are parsed but before command execution.
func initLogging() {
	log.Init(globalFlags.verbosity, globalFlags.logFormat)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
