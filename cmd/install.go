package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install shell completions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !isInPath() {
			printPathInstructions(out)
			return nil
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("unable to locate home directory: %w", err)
		}

		shell := detectShell()
		target, ok := completionTargets(cmd.Root(), home)[shell]
		if !ok {
			return fmt.Errorf("shell completion not supported for %s (supported: bash, zsh, fish, powershell)", shell)
		}

		if _, err := os.Stat(target.path()); err == nil {
			fmt.Fprintln(out, "Completions already installed at", target.path())
			return nil
		}

		if err := target.write(); err != nil {
			return fmt.Errorf("failed to install %s completions: %w", shell, err)
		}
		fmt.Fprintf(out, "Installed %s completions to %s\n", shell, target.path())
		fmt.Fprintf(out, "Enable them now with:\n   %s\n", target.activate)
		return nil
	},
}

type completionTarget struct {
	dir      string
	file     string
	gen      func(io.Writer) error
	activate string
}

func (t completionTarget) path() string {
	return filepath.Join(t.dir, t.file)
}

func (t completionTarget) write() error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}

	file, err := os.Create(t.path())
	if err != nil {
		return err
	}
	defer file.Close()

	return t.gen(file)
}

func completionTargets(root *cobra.Command, home string) map[string]completionTarget {
	bashDir := filepath.Join(home, ".local/share/bash-completion/completions")
	zshDir := filepath.Join(home, ".zsh/completions")

	return map[string]completionTarget{
		"bash": {
			dir:      bashDir,
			file:     "dllcheck",
			gen:      root.GenBashCompletion,
			activate: "source " + filepath.Join(bashDir, "dllcheck"),
		},
		"zsh": {
			dir:      zshDir,
			file:     "_dllcheck",
			gen:      root.GenZshCompletion,
			activate: fmt.Sprintf("fpath=(%s $fpath) && autoload -U compinit && compinit", zshDir),
		},
		"fish": {
			dir:      filepath.Join(home, ".config/fish/completions"),
			file:     "dllcheck.fish",
			gen:      func(w io.Writer) error { return root.GenFishCompletion(w, true) },
			activate: "complete --do-complete=dllcheck",
		},
		"powershell": {
			dir:      home,
			file:     "dllcheck_completion.ps1",
			gen:      root.GenPowerShellCompletionWithDesc,
			activate: ". " + filepath.Join(home, "dllcheck_completion.ps1"),
		},
	}
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "powershell"
	}

	if shell := os.Getenv("SHELL"); shell != "" {
		return filepath.Base(shell)
	}
	return "bash"
}

func isInPath() bool {
	execPath, err := os.Executable()
	if err != nil {
		return false
	}

	paths := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	return slices.Contains(paths, filepath.Dir(execPath))
}

func printPathInstructions(w io.Writer) {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	fmt.Fprintf(w, "dllcheck is not in PATH. Binary location: %s\n\n", execPath)
	if runtime.GOOS == "windows" {
		fmt.Fprintf(w, "Add to PATH: %s\n", execDir)
		return
	}
	fmt.Fprintf(w, "Add to shell profile: export PATH=\"%s:$PATH\"\n", execDir)
	fmt.Fprintln(w, "Or copy to: /usr/local/bin")
}

func init() {
	rootCmd.AddCommand(installCmd)
}
