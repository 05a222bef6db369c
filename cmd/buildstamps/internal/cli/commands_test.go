package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/albertocavalcante/buildstamps/pkg/config"
)

// execute runs the root command with args and returns everything it printed.
// Flag values are reset first because cobra keeps them between executions.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("buildstamps %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// newWorkspace creates an isolated workspace holding files. The user's
// global config and BUILDSTAMPS_* variables are hidden from the commands.
func newWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, env := range []string{
		config.EnvPortable, config.EnvForceDownload, config.EnvCacheSource,
		config.EnvDataDir, config.EnvOutOfRoot, config.EnvRoots, config.EnvVerbosity,
	} {
		t.Setenv(env, "")
	}

	ws, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(ws, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		writeWorkspaceFile(t, ws, name, content)
	}
	return ws
}

func writeWorkspaceFile(t *testing.T, ws, name, content string) {
	t.Helper()
	path := filepath.Join(ws, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVersionCommand(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.HasPrefix(out, "buildstamps "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestRecordAndCheck(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"src/a.go": "package a"})
	file := filepath.Join(ws, "src/a.go")

	out := mustExecute(t, "-C", ws, "check", "-t", "app", file)
	if !strings.Contains(out, "stale  "+file+" (added)") {
		t.Errorf("check before record = %q", out)
	}

	out = mustExecute(t, "-C", ws, "record", "-t", "app", file)
	if !strings.Contains(out, "recorded 1 file(s) for app") {
		t.Errorf("record output = %q", out)
	}

	out = mustExecute(t, "-C", ws, "check", "-t", "app", file)
	if !strings.Contains(out, "ok     "+file) {
		t.Errorf("check after record = %q", out)
	}

	// Another target has its own records
	out = mustExecute(t, "-C", ws, "check", "-t", "test", file)
	if !strings.Contains(out, "(added)") {
		t.Errorf("check for another target = %q", out)
	}

	writeWorkspaceFile(t, ws, "src/a.go", "package a // edited")
	out = mustExecute(t, "-C", ws, "check", "-t", "app", file)
	if !strings.Contains(out, "(modified)") {
		t.Errorf("check after edit = %q", out)
	}

	_, err := execute(t, "-C", ws, "check", "--exit-code", "-t", "app", file)
	var exit exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Errorf("check --exit-code error = %v, want exit status 1", err)
	}
}

func TestCheckJSON(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a", "b.go": "package b"})
	a, b := filepath.Join(ws, "a.go"), filepath.Join(ws, "b.go")

	mustExecute(t, "-C", ws, "record", "-t", "app", a, b)
	if err := os.Remove(b); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, "-C", ws, "check", "--json", "-t", "app", a, b)
	var results []CheckResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}

	want := []CheckResult{
		{Path: a, Stale: false, State: "unchanged"},
		{Path: b, Stale: true, State: "deleted"},
	}
	if !slices.Equal(results, want) {
		t.Errorf("check --json = %+v, want %+v", results, want)
	}
}

func TestForget(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})
	file := filepath.Join(ws, "a.go")

	mustExecute(t, "-C", ws, "record", "-t", "app", file)
	out := mustExecute(t, "-C", ws, "forget", "-t", "app", file)
	if !strings.Contains(out, "forgot 1 file(s) for app") {
		t.Errorf("forget output = %q", out)
	}

	out = mustExecute(t, "-C", ws, "check", "-t", "app", file)
	if !strings.Contains(out, "(added)") {
		t.Errorf("check after forget = %q", out)
	}
}

func TestClean(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})
	file := filepath.Join(ws, "a.go")

	mustExecute(t, "-C", ws, "record", "-t", "app", file)
	out := mustExecute(t, "-C", ws, "clean")
	if !strings.Contains(out, "removed timestamp stamps") {
		t.Errorf("clean output = %q", out)
	}

	out = mustExecute(t, "-C", ws, "check", "-t", "app", file)
	if !strings.Contains(out, "(added)") {
		t.Errorf("check after clean = %q", out)
	}
}

func TestRefreshAndStatus(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"src/a.go":          "package a",
		"src/b.py":          "print('b')",
		"node_modules/x.go": "package x",
	})

	out := mustExecute(t, "-C", ws, "status", "-t", "app")
	if !strings.Contains(out, "No stamps recorded for app") {
		t.Errorf("status before refresh = %q", out)
	}

	out = mustExecute(t, "-C", ws, "refresh", "-t", "app")
	if !strings.Contains(out, "recorded 2 file(s), forgot 0 file(s)") {
		t.Errorf("refresh output = %q", out)
	}

	out = mustExecute(t, "-C", ws, "status", "-t", "app")
	if !strings.Contains(out, "app is up to date") {
		t.Errorf("status after refresh = %q", out)
	}

	writeWorkspaceFile(t, ws, "lib/new.go", "package lib")
	writeWorkspaceFile(t, ws, "src/a.go", "package a // edited")
	if err := os.Remove(filepath.Join(ws, "src/b.py")); err != nil {
		t.Fatal(err)
	}

	out = mustExecute(t, "-C", ws, "status", "--json", "-t", "app")
	var status StatusOutput
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if !status.Stale || status.Strategy != "timestamp" || status.Target != "app" {
		t.Errorf("status = %+v", status)
	}
	if !slices.Equal(status.NewFiles, []string{"lib/new.go"}) {
		t.Errorf("new files = %v", status.NewFiles)
	}
	if !slices.Equal(status.ModifiedFiles, []string{"src/a.go"}) {
		t.Errorf("modified files = %v", status.ModifiedFiles)
	}
	if !slices.Equal(status.DeletedFiles, []string{"src/b.py"}) {
		t.Errorf("deleted files = %v", status.DeletedFiles)
	}
	if !slices.Equal(status.StaleDirs, []string{"lib", "src"}) {
		t.Errorf("stale dirs = %v", status.StaleDirs)
	}

	// Limiting languages hides the python deletion
	out = mustExecute(t, "-C", ws, "status", "--json", "--lang", "go", "-t", "app")
	status = StatusOutput{}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(status.DeletedFiles) != 0 {
		t.Errorf("deleted files with --lang go = %v", status.DeletedFiles)
	}

	out = mustExecute(t, "-C", ws, "refresh", "-t", "app")
	if !strings.Contains(out, "recorded 2 file(s), forgot 1 file(s)") {
		t.Errorf("second refresh output = %q", out)
	}
	out = mustExecute(t, "-C", ws, "status", "-t", "app")
	if !strings.Contains(out, "app is up to date") {
		t.Errorf("status after second refresh = %q", out)
	}
}

func TestStatusUnknownLanguage(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})
	if _, err := execute(t, "-C", ws, "status", "--lang", "cobol", "-t", "app"); err == nil {
		t.Error("status with unknown language should fail")
	}
}

func TestTargetRequired(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})
	if _, err := execute(t, "-C", ws, "check", filepath.Join(ws, "a.go")); err == nil {
		t.Error("check without --target should fail")
	}
}

func TestInvalidConfiguration(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})

	_, err := execute(t, "-C", ws, "--out-of-root", "ignore", "check", "-t", "app", filepath.Join(ws, "a.go"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("error = %v, want invalid configuration", err)
	}

	_, err = execute(t, "-C", ws, "--root", "nopath", "check", "-t", "app", filepath.Join(ws, "a.go"))
	if err == nil {
		t.Error("malformed --root should fail")
	}
}

func TestPortableOutOfRoot(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})
	outside := filepath.Join(t.TempDir(), "b.go")
	if err := os.WriteFile(outside, []byte("package b"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Skipped files are never recorded and always stale
	mustExecute(t, "-C", ws, "--portable", "record", "-t", "app", outside)
	out := mustExecute(t, "-C", ws, "--portable", "check", "-t", "app", outside)
	if !strings.Contains(out, "(added)") {
		t.Errorf("check of skipped file = %q", out)
	}

	_, err := execute(t, "-C", ws, "--portable", "--out-of-root", "fail", "check", "-t", "app", outside)
	if err == nil || !strings.Contains(err.Error(), "outside all configured roots") {
		t.Errorf("error = %v, want unrelativizable path", err)
	}
}

func TestPortableCacheSharing(t *testing.T) {
	files := map[string]string{"src/a.go": "package a", "src/b.go": "package b"}

	// Build machine
	ws1 := newWorkspace(t, files)
	mustExecute(t, "-C", ws1, "--portable", "refresh", "-t", "app")
	archive := filepath.Join(t.TempDir(), "stamps.tar.zst")
	out := mustExecute(t, "-C", ws1, "--portable", "export", archive)
	if !strings.Contains(out, "exported") {
		t.Errorf("export output = %q", out)
	}

	// Another checkout of the same sources at a different path
	ws2 := newWorkspace(t, files)
	out = mustExecute(t, "-C", ws2, "--portable", "import", archive)
	if !strings.Contains(out, "imported") {
		t.Errorf("import output = %q", out)
	}
	out = mustExecute(t, "-C", ws2, "--portable", "status", "-t", "app")
	if !strings.Contains(out, "app is up to date") {
		t.Errorf("status after import = %q", out)
	}

	// Timestamps of the same checkout know nothing
	out = mustExecute(t, "-C", ws2, "status", "-t", "app")
	if !strings.Contains(out, "No stamps recorded") {
		t.Errorf("timestamp status after import = %q", out)
	}

	// --force-download does the same as import before any command
	ws3 := newWorkspace(t, files)
	out = mustExecute(t, "-C", ws3, "--portable", "--force-download", "--cache-source", archive,
		"check", "-t", "app", filepath.Join(ws3, "src/a.go"))
	if !strings.Contains(out, "ok     ") {
		t.Errorf("check after force download = %q", out)
	}
}

func TestCacheCommandsRequirePortable(t *testing.T) {
	ws := newWorkspace(t, nil)
	archive := filepath.Join(t.TempDir(), "stamps.tar")

	if _, err := execute(t, "-C", ws, "export", archive); !errors.Is(err, errNotPortable) {
		t.Errorf("export error = %v, want errNotPortable", err)
	}
	if _, err := execute(t, "-C", ws, "import", archive); !errors.Is(err, errNotPortable) {
		t.Errorf("import error = %v, want errNotPortable", err)
	}
	if _, err := execute(t, "-C", ws, "--portable", "export", filepath.Join(t.TempDir(), "stamps.zip")); err == nil {
		t.Error("export with unknown archive extension should fail")
	}
}

func TestProjectConfigSelectsPortable(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		config.ConfigFileName: "[stamps]\nportable = true\n",
		"a.go":                "package a",
	})

	out := mustExecute(t, "-C", ws, "status", "--json", "-t", "app")
	var status StatusOutput
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if status.Strategy != "portable" {
		t.Errorf("strategy = %q, want portable", status.Strategy)
	}

	// The flag wins over the project config
	out = mustExecute(t, "-C", ws, "--portable=false", "status", "--json", "-t", "app")
	status = StatusOutput{}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if status.Strategy != "timestamp" {
		t.Errorf("strategy = %q, want timestamp", status.Strategy)
	}
}

func TestInitCommand(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"main.go":      "package main",
		"tools/gen.py": "print('gen')",
	})

	out := mustExecute(t, "init", "--dry-run", ws)
	if !strings.Contains(out, "Would create") {
		t.Errorf("init --dry-run output = %q", out)
	}
	if fileExists(filepath.Join(ws, config.ConfigFileName)) {
		t.Fatal("init --dry-run wrote the config")
	}

	if _, err := execute(t, "init", "--check", ws); err == nil {
		t.Error("init --check without config should fail")
	}

	out = mustExecute(t, "init", ws)
	if !strings.Contains(out, "Languages: go, python") {
		t.Errorf("init output = %q", out)
	}

	cfg := config.LoadFrom(ws)
	if !slices.Equal(cfg.Scan.Languages, []string{"go", "python"}) {
		t.Errorf("configured languages = %v", cfg.Scan.Languages)
	}

	mustExecute(t, "init", "--check", ws)

	out = mustExecute(t, "init", ws)
	if !strings.Contains(out, "already exists") {
		t.Errorf("second init output = %q", out)
	}
}
