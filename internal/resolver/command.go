package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// CommandResult is the outcome of one shell command.
type CommandResult struct {
	Stdout   string
	ExitCode int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string) (*CommandResult, error)
}

// ShellRunner runs commands through "sh -c", inheriting the process
// environment. Stdout is captured; stderr is forwarded to Stderr.
type ShellRunner struct {
	Shell  string
	Stderr io.Writer
}

// NewShellRunner returns a runner using sh and forwarding stderr to os.Stderr.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: "sh", Stderr: os.Stderr}
}

// Run executes command in dir. A non-zero exit is reported through
// CommandResult.ExitCode; err is only set when the command could not run.
func (r *ShellRunner) Run(ctx context.Context, dir, command string) (*CommandResult, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if r.Stderr != nil {
		cmd.Stderr = r.Stderr
	}

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command '%s': %w", command, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &CommandResult{Stdout: stdout.String(), ExitCode: exitCode}, nil
}
