package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/weiihann/sirun/config"
	"github.com/weiihann/sirun/metric"
	"github.com/weiihann/sirun/rusage"
	"github.com/weiihann/sirun/statsd"
)

const (
	DefaultAttempts      = 100
	DefaultRetryInterval = time.Second
	DefaultSyncTimeout   = 5 * time.Second

	// maxIterationsHint bounds the up-front allocation for results.
	maxIterationsHint = 1024
)

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	// Executable is the harness binary spawned for each iteration and
	// each variant.
	Executable string

	// Args are passed to variant children unchanged.
	Args []string

	// Direct measures every iteration in this process instead of in a
	// fresh child. Setup and teardown then run once around all iterations.
	Direct bool

	Stdout io.Writer
	Stderr io.Writer

	// Exit terminates the process when a timeout fires.
	Exit func(code int)

	// Attempts caps setup and teardown retries. RetryInterval is the wait
	// between failed attempts; a negative value disables the wait.
	Attempts      int
	RetryInterval time.Duration

	// SyncTimeout bounds the wait for in-flight metrics after a command.
	SyncTimeout time.Duration
}

// Orchestrator drives one benchmark invocation: setup, measured iterations,
// teardown, optional profiling and the result line.
type Orchestrator struct {
	cfg     *config.Config
	env     config.Env
	logger  *slog.Logger
	opts    Options
	runner  *Runner
	channel *statsd.Listener
}

// New creates an Orchestrator for cfg.
func New(
	cfg *config.Config,
	env config.Env,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryInterval < 0 {
		opts.RetryInterval = 0
	} else if opts.RetryInterval == 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}

	if cfg.Name != "" {
		logger = logger.With(slog.String("name", cfg.Name))
	}
	if cfg.Variant != "" {
		logger = logger.With(slog.String("variant", cfg.Variant))
	}

	runner := NewRunner(cfg.EnvList(), env.NoStdio, logger)
	runner.Stdout = opts.Stdout
	runner.Stderr = opts.Stderr
	// Commands see neither the iteration payload nor the skip marker, so a
	// nested sirun behaves like a top-level one. SIRUN_STATSD_PORT stays.
	runner.Unset = []string{config.EnvIteration, config.EnvSkipSetup}

	return &Orchestrator{
		cfg:    cfg,
		env:    env,
		logger: logger,
		opts:   opts,
		runner: runner,
	}
}

// Run executes the whole invocation and writes one JSON result line, or one
// line per variant when the config fans out.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.FansOut() {
		return o.runVariants(ctx)
	}

	if err := o.openChannel(ctx); err != nil {
		return err
	}
	defer o.channel.Close()

	o.logger.InfoContext(ctx, "starting benchmark",
		slog.Uint64("iterations", o.cfg.Iterations),
		slog.Bool("direct", o.opts.Direct),
		slog.Int("statsd_port", o.channel.Port()),
	)

	iterations, err := o.measureAll(ctx)
	if err != nil {
		return err
	}

	result := o.assemble(iterations)

	instructions, ok, err := o.profile(ctx)
	if err != nil {
		return err
	}
	if ok {
		result.SetNumber(KeyInstructions, instructions)
	}

	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if _, err := fmt.Fprintln(o.opts.Stdout, string(b)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	o.logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func (o *Orchestrator) openChannel(ctx context.Context) error {
	port, err := statsd.ParsePort(o.env.StatsdPort)
	if err != nil {
		return err
	}

	l, err := statsd.Listen(port, o.logger)
	if err != nil {
		return err
	}

	l.Start()

	select {
	case <-l.Ready():
	case <-ctx.Done():
		l.Close()
		return ctx.Err()
	}

	o.channel = l
	o.runner.Env = append(o.runner.Env,
		config.EnvStatsdPort+"="+strconv.Itoa(l.Port()),
	)

	return nil
}

func (o *Orchestrator) measureAll(ctx context.Context) ([]metric.Value, error) {
	iterations := make([]metric.Value, 0, min(o.cfg.Iterations, maxIterationsHint))

	if !o.opts.Direct {
		for i := uint64(0); i < o.cfg.Iterations; i++ {
			it, err := o.childIteration(ctx, i)
			if err != nil {
				return nil, err
			}

			iterations = append(iterations, metric.FromMap(it))
		}

		return iterations, nil
	}

	if err := o.setup(ctx); err != nil {
		return nil, err
	}

	for i := uint64(0); i < o.cfg.Iterations; i++ {
		it, err := o.directIteration(ctx, i)
		if err != nil {
			return nil, err
		}

		iterations = append(iterations, metric.FromMap(it))
	}

	if err := o.teardown(ctx); err != nil {
		return nil, err
	}

	return iterations, nil
}

func (o *Orchestrator) directIteration(ctx context.Context, i uint64) (*metric.Map, error) {
	o.discardPending(ctx)

	kernel, err := o.measure(ctx)
	if err != nil {
		return nil, err
	}

	custom := o.collect(ctx)

	o.logger.DebugContext(ctx, "iteration finished",
		slog.Uint64("iteration", i),
		slog.Int("custom_metrics", custom.Len()),
	)

	return iterationResult(kernel, custom), nil
}

// childIteration runs setup, one fresh harness child that measures the
// command and reports over the channel, then teardown.
func (o *Orchestrator) childIteration(ctx context.Context, i uint64) (*metric.Map, error) {
	o.discardPending(ctx)

	if err := o.setup(ctx); err != nil {
		return nil, err
	}

	encoded, err := o.cfg.Encode()
	if err != nil {
		return nil, err
	}

	if o.opts.Executable == "" {
		return nil, fmt.Errorf("no harness executable for iteration %d", i)
	}

	child := o.runner.With(
		config.EnvIteration+"="+encoded,
		config.EnvSkipSetup+"=1",
	)
	// The child applies the stdio policy to the measured command itself
	// and keeps its own diagnostics visible.
	child.NoStdio = false

	status, err := child.Run(ctx, []string{o.opts.Executable})
	if err != nil {
		return nil, fmt.Errorf("iteration %d: %w", i, err)
	}

	if status.Fatal() {
		return nil, &ExitError{
			Code: status.Code,
			Err:  fmt.Errorf("iteration %d: child exited with code %d", i, status.Code),
		}
	}

	if !status.Success() {
		o.logger.WarnContext(ctx, "iteration child ended abnormally",
			slog.Uint64("iteration", i),
			slog.String("status", status.String()),
		)
	}

	reported := o.collect(ctx)
	for _, k := range kernelKeys {
		if !reported.Has(k) {
			return nil, fmt.Errorf("%w: iteration %d (%s), missing %s",
				ErrNoReport, i, status, k)
		}
	}

	if err := o.teardown(ctx); err != nil {
		return nil, err
	}

	return iterationResult(kernelPart(reported), reported), nil
}

// measure runs the measured command once under the timeout watcher and
// returns its kernel metrics. The resource samples bracket only the command.
func (o *Orchestrator) measure(ctx context.Context) (*metric.Map, error) {
	stop := o.watchTimeout()
	defer stop()

	before, err := rusage.Sample()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	status, runErr := o.runner.Run(ctx, o.cfg.Run)
	wall := time.Since(start)

	after, err := rusage.Sample()
	if runErr != nil {
		return nil, runErr
	}
	if err != nil {
		return nil, err
	}

	if status.Fatal() {
		o.logger.ErrorContext(ctx, "test exited with a failing code, aborting",
			slog.Int("code", status.Code),
			slog.Any("config", o.cfg),
		)

		return nil, &ExitError{
			Code: status.Code,
			Err:  fmt.Errorf("test exited with code %d", status.Code),
		}
	}

	if !status.Success() {
		o.logger.WarnContext(ctx, "test ended abnormally, keeping measurement",
			slog.String("status", status.String()),
		)
	}

	return kernelMetrics(float64(wall.Microseconds()), after.Sub(before)), nil
}

// collect waits until everything already sent to the channel is buffered,
// then drains it.
func (o *Orchestrator) collect(ctx context.Context) *metric.Map {
	syncCtx, cancel := context.WithTimeout(ctx, o.opts.SyncTimeout)
	defer cancel()

	if err := o.channel.Sync(syncCtx); err != nil {
		o.logger.WarnContext(ctx, "metric channel sync failed",
			slog.String("error", err.Error()),
		)
	}

	return o.channel.Drain()
}

// discardPending drops metrics that arrived before the iteration started.
func (o *Orchestrator) discardPending(ctx context.Context) {
	if stale := o.collect(ctx); stale.Len() > 0 {
		o.logger.DebugContext(ctx, "discarding metrics from outside an iteration",
			slog.Any("keys", stale.Keys()),
		)
	}
}
