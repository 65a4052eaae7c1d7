package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner spawns commands with an environment overlay and a stdio policy.
type Runner struct {
	// Env is appended to the inherited environment as KEY=VALUE pairs.
	Env []string

	// Unset names inherited variables removed before Env is applied.
	Unset []string

	// NoStdio discards the command's stdout and stderr instead of
	// passing the harness's own streams through.
	NoStdio bool

	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewRunner creates a Runner that inherits stdin, stdout and stderr.
func NewRunner(env []string, noStdio bool, logger *slog.Logger) *Runner {
	return &Runner{
		Env:     env,
		NoStdio: noStdio,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  logger,
	}
}

// With returns a copy of r whose overlay has extra appended.
func (r *Runner) With(extra ...string) *Runner {
	cp := *r
	cp.Env = append(append([]string{}, r.Env...), extra...)
	cp.Unset = append([]string{}, r.Unset...)

	return &cp
}

// Run executes argv and waits for it. A non-zero exit is reported through
// the returned ExitStatus, not as an error.
func (r *Runner) Run(ctx context.Context, argv []string) (ExitStatus, error) {
	cmd, err := r.command(ctx, argv)
	if err != nil {
		return ExitStatus{}, err
	}

	cmd.Stdin = os.Stdin
	if !r.NoStdio {
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
	}

	r.Logger.Debug("starting command", slog.Any("argv", argv))

	return r.wait(cmd, cmd.Run())
}

// Output executes argv and captures its stdout and stderr.
func (r *Runner) Output(
	ctx context.Context,
	argv []string,
) (stdout, stderr []byte, status ExitStatus, err error) {
	cmd, err := r.command(ctx, argv)
	if err != nil {
		return nil, nil, ExitStatus{}, err
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	r.Logger.Debug("starting command", slog.Any("argv", argv))

	status, err = r.wait(cmd, cmd.Run())

	return outBuf.Bytes(), errBuf.Bytes(), status, err
}

func (r *Runner) command(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(r.environ(), r.Env...)

	return cmd, nil
}

func (r *Runner) wait(cmd *exec.Cmd, runErr error) (ExitStatus, error) {
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return ExitStatus{}, fmt.Errorf("run %s: %w", cmd.Path, runErr)
		}
	}

	return statusOf(cmd.ProcessState), nil
}

func (r *Runner) environ() []string {
	env := os.Environ()
	if len(r.Unset) == 0 {
		return env
	}

	out := env[:0]

	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")

		drop := false
		for _, u := range r.Unset {
			if name == u {
				drop = true
				break
			}
		}

		if !drop {
			out = append(out, kv)
		}
	}

	return out
}
