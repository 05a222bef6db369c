package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/detect"
	"github.com/albertocavalcante/buildstamps/pkg/config"
)

var initFlags struct {
	languages []string
	check     bool
	dryRun    bool
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a buildstamps.toml for a project",
	Long: `Creates a buildstamps.toml project configuration.

This command will:
1. Detect languages used in your project
2. Write buildstamps.toml with the detected languages, the stamps data
   directory and, with --portable, the project root used for portable stamps

An existing project configuration is never overwritten.

Use --check to verify configuration without making changes (useful for CI).
Use --dry-run to preview changes without applying them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringSliceVarP(&initFlags.languages, "languages", "l", nil,
		"Languages to configure (auto-detected if not specified)")
	initCmd.Flags().BoolVar(&initFlags.check, "check", false,
		"Check if project is properly configured (exit 1 if not)")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show what would change without applying")

	rootCmd.AddCommand(initCmd)
}

// projectFile is the layout of the buildstamps.toml written by init.
type projectFile struct {
	Stamps projectStamps       `toml:"stamps"`
	Roots  []config.RootConfig `toml:"roots,omitempty"`
	Scan   projectScan         `toml:"scan"`
}

type projectStamps struct {
	Portable  bool   `toml:"portable"`
	DataDir   string `toml:"data_dir"`
	OutOfRoot string `toml:"out_of_root,omitempty"`
}

type projectScan struct {
	Languages []string `toml:"languages"`
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := canonicalDir(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	// Determine languages
	var languages []string
	if len(initFlags.languages) > 0 {
		languages = initFlags.languages
	} else {
		detected, err := detect.Languages(commandContext(cmd), absPath, nil)
		if err != nil {
			return fmt.Errorf("failed to detect languages: %w", err)
		}
		languages = detected
	}

	if len(languages) == 0 {
		_, _ = fmt.Fprintln(out, "No languages detected. Use --languages to specify manually.")
		return nil
	}

	_, _ = fmt.Fprintf(out, "Languages: %s\n", strings.Join(languages, ", "))

	existing := existingProjectConfig(absPath)

	if initFlags.check {
		return runInitCheck(out, cmd.ErrOrStderr(), existing, languages)
	}

	content, err := generateProjectConfig(languages, cmd.Flags().Changed("portable") && globalFlags.portable)
	if err != nil {
		return err
	}
	target := filepath.Join(absPath, config.ConfigFileName)

	if initFlags.dryRun {
		if existing != "" {
			_, _ = fmt.Fprintf(out, "Project config exists at %s (would not modify)\n", existing)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Would create %s:\n", target)
		_, _ = fmt.Fprintln(out, content)
		return nil
	}

	if existing != "" {
		_, _ = fmt.Fprintf(out, "Project config already exists at %s (skipping)\n", existing)
		return nil
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.ConfigFileName, err)
	}
	_, _ = fmt.Fprintf(out, "Created %s\n", target)

	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Add the data directory to your ignore file")
	_, _ = fmt.Fprintln(out, "  2. Run 'buildstamps refresh -t <target>' after a successful build")
	return nil
}

// existingProjectConfig returns the first project config file in dir, or "".
func existingProjectConfig(dir string) string {
	for _, path := range config.GetProjectConfigPaths(dir) {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func generateProjectConfig(languages []string, portable bool) (string, error) {
	langs := slices.Clone(languages)
	slices.Sort(langs)

	file := projectFile{
		Stamps: projectStamps{
			Portable: portable,
			DataDir:  config.DefaultDataDir,
		},
		Scan: projectScan{Languages: langs},
	}
	if portable {
		file.Stamps.OutOfRoot = "skip"
		file.Roots = []config.RootConfig{{Name: config.DefaultRootName, Path: "."}}
	}

	var buf bytes.Buffer
	buf.WriteString("# buildstamps project configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(file); err != nil {
		return "", fmt.Errorf("failed to encode project config: %w", err)
	}
	return buf.String(), nil
}

func runInitCheck(out, errOut io.Writer, existing string, languages []string) error {
	var issues []string

	if existing == "" {
		issues = append(issues, "no buildstamps.toml or .buildstamps/config.toml found")
	} else {
		cfg := config.NewConfig()
		if _, err := toml.DecodeFile(existing, cfg); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", existing, err))
		} else if err := cfg.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", existing, err))
		} else {
			for _, lang := range languages {
				if !cfg.IsLanguageEnabled(lang) {
					issues = append(issues, fmt.Sprintf("language %s is used but not scanned", lang))
				}
			}
		}
	}

	if len(issues) > 0 {
		_, _ = fmt.Fprintln(errOut, "Project configuration issues:")
		for _, issue := range issues {
			_, _ = fmt.Fprintf(errOut, "  - %s\n", issue)
		}
		_, _ = fmt.Fprintln(errOut, "\nRun 'buildstamps init' to fix")
		return exitError{code: 1}
	}

	_, _ = fmt.Fprintln(out, "Project is properly configured")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
