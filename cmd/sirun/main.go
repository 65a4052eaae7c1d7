// Package main provides the CLI entry point for sirun, a harness that
// benchmarks short-lived commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/weiihann/sirun/config"
	"github.com/weiihann/sirun/harness"
	"github.com/weiihann/sirun/summary"
)

func main() {
	os.Exit(run())
}

func run() int {
	level := new(slog.LevelVar)
	logger := newLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := config.LoadEnv()

	var err error
	if env.IsChild() {
		err = runChild(ctx, logger, env)
	} else {
		root := newRootCmd(logger, level, env)
		err = root.ExecuteContext(ctx)
	}

	if err == nil {
		return 0
	}

	logger.Error(err.Error())

	var exitErr *harness.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return 1
}

func newLogger(w *os.File, level slog.Leveler) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd()),
	}))
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar, env config.Env) *cobra.Command {
	var (
		summarize bool
		direct    bool
		verbose   bool
		format    string
	)

	root := &cobra.Command{
		Use:   "sirun <config>",
		Short: "Benchmark a short-lived command",
		Long: `Sirun runs the command described by a YAML, JSON or TOML config one or
more times, measuring wall time, CPU time, peak memory and any metrics the
command reports over statsd. Each run prints one JSON line.

With --summarize it instead reads those lines from stdin and prints
statistics per benchmark and variant.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if summarize {
				return cobra.NoArgs(cmd, args)
			}

			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				level.Set(slog.LevelDebug)
			}

			if summarize {
				return runSummarize(cmd.InOrStdin(), cmd.OutOrStdout(), format)
			}

			return runBenchmark(cmd.Context(), logger, env, args[0], direct)
		},
	}

	flags := root.Flags()
	flags.BoolVar(&summarize, "summarize", false,
		"Summarize newline-delimited results read from stdin")
	flags.StringVar(&format, "format", "json",
		"Summary output format: json, markdown")
	flags.BoolVar(&direct, "direct", false,
		"Measure iterations in this process instead of a fresh child each")
	flags.BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	_ = flags.MarkHidden("direct")

	return root
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	env config.Env,
	path string,
	direct bool,
) error {
	cfg, err := config.Load(path, env)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate sirun executable: %w", err)
	}

	return harness.New(cfg, env, logger, harness.Options{
		Executable: exe,
		Args:       os.Args[1:],
		Direct:     direct,
	}).Run(ctx)
}

func runChild(ctx context.Context, logger *slog.Logger, env config.Env) error {
	cfg, err := config.Decode(env.Iteration)
	if err != nil {
		return err
	}

	return harness.New(cfg, env, logger, harness.Options{}).RunChild(ctx)
}

func runSummarize(in io.Reader, out io.Writer, format string) error {
	doc, err := summary.Summarize(in)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return summary.Write(out, doc)
	case "markdown":
		return summary.WriteTable(out, doc)
	default:
		return fmt.Errorf("unknown summary format %q", format)
	}
}
