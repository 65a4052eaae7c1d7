package harness

import (
	"context"
	"log/slog"
	"os"
	"os/exec"

	"github.com/weiihann/sirun/config"
)

// runVariants re-runs the harness once per variant, one after another, with
// the variant pinned through the environment. A failed variant is logged
// and does not stop the rest.
func (o *Orchestrator) runVariants(ctx context.Context) error {
	for _, id := range o.cfg.Variants {
		logger := o.logger.With(slog.String("variant", id))

		cmd := exec.CommandContext(ctx, o.opts.Executable, o.opts.Args...)
		cmd.Env = append(os.Environ(), config.EnvVariant+"="+id)
		cmd.Stdin = os.Stdin
		cmd.Stdout = o.opts.Stdout
		cmd.Stderr = o.opts.Stderr

		logger.InfoContext(ctx, "running variant")

		if err := cmd.Run(); err != nil {
			logger.ErrorContext(ctx, "variant failed",
				slog.String("error", err.Error()),
			)

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	return nil
}
