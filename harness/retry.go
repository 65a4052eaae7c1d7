package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

func (o *Orchestrator) setup(ctx context.Context) error {
	return o.untilSuccess(ctx, "setup", o.cfg.Setup, ErrSetupFailed)
}

func (o *Orchestrator) teardown(ctx context.Context) error {
	return o.untilSuccess(ctx, "teardown", o.cfg.Teardown, ErrTeardownFailed)
}

// untilSuccess runs argv until it exits 0, waiting RetryInterval after each
// failure and giving up after Attempts failures. Termination by a signal is
// not retried.
func (o *Orchestrator) untilSuccess(
	ctx context.Context,
	stage string,
	argv []string,
	failed error,
) error {
	if len(argv) == 0 || o.env.SkipSetup {
		return nil
	}

	logger := o.logger.With(slog.String("stage", stage))

	for attempt := 1; ; attempt++ {
		status, err := o.runner.Run(ctx, argv)
		if err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}

		if status.Success() {
			if attempt > 1 {
				logger.InfoContext(ctx, "script succeeded after retries",
					slog.Int("attempts", attempt),
				)
			}

			return nil
		}

		if status.Signaled {
			return fmt.Errorf("%s script %s: %w", stage, status, failed)
		}

		if attempt >= o.opts.Attempts {
			return fmt.Errorf("%w after %d attempts, aborting", failed, attempt)
		}

		logger.WarnContext(ctx, "script failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("code", status.Code),
		)

		select {
		case <-time.After(o.opts.RetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
