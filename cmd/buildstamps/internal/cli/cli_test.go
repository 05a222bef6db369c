package cli

import (
	"testing"

	"github.com/spf13/cobra"
)

// TestNoFlagConflicts verifies that all subcommands can be initialized
// without flag shorthand conflicts. This catches issues like multiple
// commands defining the same shorthand (e.g., -v for both --verbosity
// and --verbose).
func TestNoFlagConflicts(t *testing.T) {
	// Get the root command which has all subcommands registered
	root := RootCmd()

	// Verify root command exists
	if root == nil {
		t.Fatal("RootCmd() returned nil")
	}

	// Get all subcommands
	subcommands := root.Commands()
	if len(subcommands) == 0 {
		t.Fatal("expected at least one subcommand")
	}

	// Test that we can parse flags for each subcommand without panic
	// This exercises the flag merging that happens when persistent flags
	// are combined with local flags
	for _, cmd := range subcommands {
		t.Run(cmd.Name(), func(t *testing.T) {
			// This will panic if there are flag conflicts
			// We catch the panic and fail the test with a descriptive message
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("flag conflict in %q command: %v", cmd.Name(), r)
				}
			}()

			// Trigger flag parsing by getting all flags
			// This merges persistent flags from parent with local flags
			_ = cmd.Flags()

			// Also check inherited flags which forces the merge
			_ = cmd.InheritedFlags()
		})
	}
}

// TestGlobalVerbosityFlag verifies the global -v flag exists and is properly configured.
func TestGlobalVerbosityFlag(t *testing.T) {
	root := RootCmd()

	// Check that -v is defined as a persistent flag on root
	vFlag := root.PersistentFlags().Lookup("verbosity")
	if vFlag == nil {
		t.Fatal("expected persistent 'verbosity' flag on root command")
	}

	if vFlag.Shorthand != "v" {
		t.Errorf("expected verbosity flag shorthand to be 'v', got %q", vFlag.Shorthand)
	}
}

// TestSubcommandsExist verifies expected subcommands are registered.
func TestSubcommandsExist(t *testing.T) {
	root := RootCmd()

	expectedCmds := []string{"version", "init", "check", "record", "forget", "clean", "status", "refresh", "export", "import", "watch"}

	for _, name := range expectedCmds {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

// TestVerboseFlagNoShorthand verifies that subcommand --verbose flags
// don't have a -v shorthand (which would conflict with root's -v).
func TestVerboseFlagNoShorthand(t *testing.T) {
	root := RootCmd()

	// Commands that have a --verbose flag
	cmdsWithVerbose := []string{"status", "refresh", "watch"}

	for _, cmdName := range cmdsWithVerbose {
		t.Run(cmdName, func(t *testing.T) {
			var cmd *cobra.Command
			for _, c := range root.Commands() {
				if c.Name() == cmdName {
					cmd = c
					break
				}
			}

			if cmd == nil {
				t.Skipf("command %q not found", cmdName)
				return
			}

			verboseFlag := cmd.Flags().Lookup("verbose")
			if verboseFlag == nil {
				t.Skipf("command %q has no verbose flag", cmdName)
				return
			}

			if verboseFlag.Shorthand != "" {
				t.Errorf("command %q verbose flag should not have shorthand, got %q",
					cmdName, verboseFlag.Shorthand)
			}
		})
	}
}

// TestTargetFlag verifies that commands working on a target require -t.
func TestTargetFlag(t *testing.T) {
	root := RootCmd()

	for _, name := range []string{"check", "record", "forget", "status", "refresh", "watch"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := root.Find([]string{name})
			if err != nil || cmd.Name() != name {
				t.Fatalf("command %q not found: %v", name, err)
			}

			flag := cmd.Flags().Lookup("target")
			if flag == nil {
				t.Fatal("target flag not found")
			}
			if flag.Shorthand != "t" {
				t.Errorf("target flag shorthand = %q, want %q", flag.Shorthand, "t")
			}
			if ann := flag.Annotations[cobra.BashCompOneRequiredFlag]; len(ann) == 0 || ann[0] != "true" {
				t.Error("target flag should be required")
			}
		})
	}
}

// TestStampsFlags verifies the persistent flags that select the stamps storage.
func TestStampsFlags(t *testing.T) {
	root := RootCmd()

	tests := []struct {
		name        string
		wantType    string
		wantDefault string
	}{
		{"data-dir", "string", ""},
		{"portable", "bool", "false"},
		{"root", "stringArray", "[]"},
		{"out-of-root", "string", ""},
		{"force-download", "bool", "false"},
		{"cache-source", "string", ""},
		{"workspace", "string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := root.PersistentFlags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("persistent flag %q not found", tt.name)
			}
			if flag.Value.Type() != tt.wantType {
				t.Errorf("flag %q type = %q, want %q", tt.name, flag.Value.Type(), tt.wantType)
			}
			if flag.DefValue != tt.wantDefault {
				t.Errorf("flag %q default = %q, want %q", tt.name, flag.DefValue, tt.wantDefault)
			}
		})
	}
}
