package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"github.com/albertocavalcante/buildstamps/pkg/config"
)

func decodeProjectConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	if _, err := toml.Decode(content, cfg); err != nil {
		t.Fatalf("generated config does not decode: %v\n%s", err, content)
	}
	return cfg
}

func TestGenerateProjectConfig(t *testing.T) {
	content, err := generateProjectConfig([]string{"python", "go"}, false)
	if err != nil {
		t.Fatalf("generateProjectConfig() error = %v", err)
	}

	cfg := decodeProjectConfig(t, content)
	if cfg.IsPortable() {
		t.Error("config should not enable portable stamps")
	}
	if cfg.Stamps.DataDir != config.DefaultDataDir {
		t.Errorf("data_dir = %q, want %q", cfg.Stamps.DataDir, config.DefaultDataDir)
	}
	if !slices.Equal(cfg.Scan.Languages, []string{"go", "python"}) {
		t.Errorf("languages = %v, want sorted [go python]", cfg.Scan.Languages)
	}
	if len(cfg.Roots) != 0 {
		t.Errorf("roots = %v, want none", cfg.Roots)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated config is invalid: %v", err)
	}
}

func TestGenerateProjectConfig_Portable(t *testing.T) {
	content, err := generateProjectConfig([]string{"go"}, true)
	if err != nil {
		t.Fatalf("generateProjectConfig() error = %v", err)
	}

	cfg := decodeProjectConfig(t, content)
	if !cfg.IsPortable() {
		t.Error("config should enable portable stamps")
	}
	want := []config.RootConfig{{Name: config.DefaultRootName, Path: "."}}
	if !slices.Equal(cfg.Roots, want) {
		t.Errorf("roots = %v, want %v", cfg.Roots, want)
	}
	if cfg.Stamps.OutOfRoot != "skip" {
		t.Errorf("out_of_root = %q, want skip", cfg.Stamps.OutOfRoot)
	}
}

func TestExistingProjectConfig(t *testing.T) {
	dir := t.TempDir()
	if got := existingProjectConfig(dir); got != "" {
		t.Errorf("existingProjectConfig() = %q, want empty", got)
	}

	fileConfig := filepath.Join(dir, config.ConfigFileName)
	if err := os.WriteFile(fileConfig, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := existingProjectConfig(dir); got != fileConfig {
		t.Errorf("existingProjectConfig() = %q, want %q", got, fileConfig)
	}

	dirConfig := filepath.Join(dir, config.ConfigDirName, "config.toml")
	if err := os.MkdirAll(filepath.Dir(dirConfig), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dirConfig, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := existingProjectConfig(dir); got != dirConfig {
		t.Errorf("existingProjectConfig() = %q, want %q (config dir wins)", got, dirConfig)
	}
}

func TestRunInitCheck(t *testing.T) {
	tests := []struct {
		name      string
		content   string // empty means no config file
		languages []string
		wantErr   bool
		wantIssue string
	}{
		{
			name:      "missing config",
			languages: []string{"go"},
			wantErr:   true,
			wantIssue: "no buildstamps.toml",
		},
		{
			name:      "all languages scanned",
			content:   "[scan]\nlanguages = [\"go\", \"python\"]\n",
			languages: []string{"go", "python"},
		},
		{
			name:      "empty language list scans everything",
			content:   "[stamps]\nportable = false\n",
			languages: []string{"go", "kotlin"},
		},
		{
			name:      "language not scanned",
			content:   "[scan]\nlanguages = [\"go\"]\n",
			languages: []string{"go", "kotlin"},
			wantErr:   true,
			wantIssue: "language kotlin is used but not scanned",
		},
		{
			name:      "invalid value",
			content:   "[stamps]\nout_of_root = \"ignore\"\n",
			languages: []string{"go"},
			wantErr:   true,
			wantIssue: "out_of_root",
		},
		{
			name:      "malformed toml",
			content:   "[stamps\n",
			languages: []string{"go"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := ""
			if tt.content != "" {
				existing = filepath.Join(t.TempDir(), config.ConfigFileName)
				if err := os.WriteFile(existing, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			var out, errOut bytes.Buffer
			err := runInitCheck(&out, &errOut, existing, tt.languages)

			var exit exitError
			if tt.wantErr {
				if !errors.As(err, &exit) || exit.code != 1 {
					t.Fatalf("runInitCheck() error = %v, want exit status 1", err)
				}
				if tt.wantIssue != "" && !strings.Contains(errOut.String(), tt.wantIssue) {
					t.Errorf("issues = %q, want mention of %q", errOut.String(), tt.wantIssue)
				}
				return
			}
			if err != nil {
				t.Fatalf("runInitCheck() error = %v\n%s", err, errOut.String())
			}
			if !strings.Contains(out.String(), "properly configured") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}
