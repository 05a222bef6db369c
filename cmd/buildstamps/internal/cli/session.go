package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/incremental"
	"github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/langs"
	"github.com/albertocavalcante/buildstamps/internal/log"
	"github.com/albertocavalcante/buildstamps/pkg/config"
	"github.com/albertocavalcante/buildstamps/pkg/relativize"
	"github.com/albertocavalcante/buildstamps/pkg/stamps"
	"github.com/spf13/cobra"
)

// session is one command's open stamps storage plus the configuration it was
// opened with. Commands must Close it before returning.
type session struct {
	workspace string
	cfg       *config.Config
	stamps    *stamps.ProjectStamps
	storage   stamps.Storage
	logger    *slog.Logger
}

// openSession loads the configuration for the current workspace and opens
// its stamps storage.
func openSession(cmd *cobra.Command) (*session, error) {
	workspace, cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	return startSession(workspace, cfg)
}

// loadSettings resolves the workspace and its layered configuration with the
// command-line flags applied last.
func loadSettings(cmd *cobra.Command) (string, *config.Config, error) {
	workspace, err := resolveWorkspace()
	if err != nil {
		return "", nil, err
	}
	cfg := config.LoadFrom(workspace)
	if err := applyFlags(cmd, cfg); err != nil {
		return "", nil, err
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid configuration: %w", err)
	}
	applyLogConfig(cmd, cfg)
	return workspace, cfg, nil
}

func startSession(workspace string, cfg *config.Config) (*session, error) {
	logger := log.Component("stamps")

	opts := stamps.Options{
		DataDir:       cfg.ResolveDataDir(workspace),
		Strategy:      stamps.StrategyTimestamp,
		ForceDownload: cfg.IsForceDownload(),
		CacheSource:   cfg.ResolveCacheSource(workspace),
		Logger:        logger,
	}
	if cfg.IsPortable() {
		r, err := newRelativizer(cfg.ResolveRoots(workspace))
		if err != nil {
			return nil, err
		}
		policy, err := stamps.ParseOutOfRootPolicy(cfg.Stamps.OutOfRoot)
		if err != nil {
			return nil, err
		}
		opts.Strategy = stamps.StrategyPortable
		opts.Relativizer = r
		opts.OutOfRoot = policy
	}

	ps, err := stamps.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open stamps storage: %w", err)
	}
	storage, err := ps.Storage()
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	return &session{
		workspace: workspace,
		cfg:       cfg,
		stamps:    ps,
		storage:   storage,
		logger:    logger,
	}, nil
}

// Close ends the stamps session.
func (s *session) Close() error {
	return s.stamps.Close()
}

// tracker returns a tracker for target over the files under dir.
func (s *session) tracker(target, dir string, languages []string) (*incremental.Tracker, error) {
	if target == "" {
		return nil, errors.New("a target is required (--target)")
	}
	if len(languages) == 0 {
		languages = s.cfg.Scan.Languages
	}
	for _, lang := range languages {
		if _, ok := langs.Extensions[lang]; !ok {
			return nil, fmt.Errorf("unknown language %q (known: %v)", lang, langs.Names())
		}
	}

	root := s.workspace
	if dir != "" {
		resolved, err := canonicalDir(dir)
		if err != nil {
			return nil, err
		}
		root = resolved
	}

	scanner := incremental.NewScanner(incremental.ScanConfig{
		Root:       root,
		Languages:  languages,
		IgnoreDirs: s.cfg.Scan.IgnoreDirs,
	})
	return incremental.NewTracker(s.storage, stamps.Target(target), scanner, log.Component("incremental")), nil
}

// fileTracker returns a tracker for per-file operations on target.
func (s *session) fileTracker(target string) (*incremental.Tracker, error) {
	if target == "" {
		return nil, errors.New("a target is required (--target)")
	}
	return incremental.NewTracker(s.storage, stamps.Target(target), nil, log.Component("incremental")), nil
}

func resolveWorkspace() (string, error) {
	dir := globalFlags.workspace
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		dir = config.FindWorkspaceRoot(wd)
	}
	return canonicalDir(dir)
}

// canonicalDir returns dir as an absolute path with symlinks resolved.
func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path must be a directory: %s", dir)
	}
	return resolved, nil
}

// canonicalFile returns path as an absolute path. Symlinks are resolved when
// the file exists; a missing file keeps its absolute path so its record can
// still be checked or forgotten.
func canonicalFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	// Resolve the parent so a deleted file keys the same as when it existed
	if parent, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(parent, filepath.Base(abs)), nil
	}
	return abs, nil
}

func canonicalFiles(paths []string) ([]string, error) {
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		f, err := canonicalFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func newRelativizer(roots []config.RootConfig) (*relativize.Relativizer, error) {
	rr := make([]relativize.Root, 0, len(roots))
	for _, root := range roots {
		path := root.Path
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
		rr = append(rr, relativize.Root{Name: root.Name, Path: path})
	}
	r, err := relativize.New(rr...)
	if err != nil {
		return nil, fmt.Errorf("invalid project roots: %w", err)
	}
	return r, nil
}

// applyFlags layers explicitly set persistent flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("data-dir") {
		dir, err := filepath.Abs(globalFlags.dataDir)
		if err != nil {
			return fmt.Errorf("invalid data directory %s: %w", globalFlags.dataDir, err)
		}
		cfg.Stamps.DataDir = dir
	}
	if flags.Changed("portable") {
		v := globalFlags.portable
		cfg.Stamps.Portable = &v
	}
	if flags.Changed("root") {
		roots := make([]config.RootConfig, 0, len(globalFlags.roots))
		for _, s := range globalFlags.roots {
			root, err := config.ParseRoot(s)
			if err != nil {
				return err
			}
			if root.Path, err = filepath.Abs(root.Path); err != nil {
				return fmt.Errorf("invalid root %s: %w", s, err)
			}
			roots = append(roots, root)
		}
		cfg.Roots = roots
	}
	if flags.Changed("out-of-root") {
		cfg.Stamps.OutOfRoot = globalFlags.outOfRoot
	}
	if flags.Changed("force-download") {
		v := globalFlags.forceDownload
		cfg.Stamps.ForceDownload = &v
	}
	if flags.Changed("cache-source") {
		src, err := filepath.Abs(globalFlags.cacheSource)
		if err != nil {
			return fmt.Errorf("invalid cache source %s: %w", globalFlags.cacheSource, err)
		}
		cfg.Stamps.CacheSource = src
	}
	return nil
}

// applyLogConfig re-initializes logging when the configuration sets log
// options the flags left at their defaults.
func applyLogConfig(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	verbosity := globalFlags.verbosity
	if !flags.Changed("verbosity") && cfg.Log.Verbosity != nil {
		verbosity = *cfg.Log.Verbosity
	}
	format := globalFlags.logFormat
	if !flags.Changed("log-format") && cfg.Log.Format != "" {
		format = cfg.Log.Format
	}
	if verbosity != log.Verbosity() || format != log.Format() {
		log.Init(verbosity, format)
	}
}
