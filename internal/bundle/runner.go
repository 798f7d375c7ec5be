package bundle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner executes an external command and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Dir is the working directory; empty means the current one.
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Run starts name with args and waits for it to exit.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	// Tool output goes to stderr so stdout stays machine readable.
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	logger.InfoContext(ctx, "running command", "command", name+" "+strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}
