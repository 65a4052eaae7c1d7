package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/weiihann/sirun/config"
	"github.com/weiihann/sirun/statsd"
)

// RunChild is the whole life of a per-iteration child: measure the command
// once and send the kernel metrics to the parent's metric channel.
func (o *Orchestrator) RunChild(ctx context.Context) error {
	port, err := statsd.ParsePort(o.env.StatsdPort)
	if err != nil {
		return err
	}

	o.runner.Env = append(o.runner.Env,
		config.EnvStatsdPort+"="+strconv.Itoa(port),
	)

	kernel, err := o.measure(ctx)
	if err != nil {
		return err
	}

	client, err := statsd.Dial(port)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Send(kernel); err != nil {
		return fmt.Errorf("report iteration: %w", err)
	}

	o.logger.DebugContext(ctx, "iteration reported",
		slog.Int("statsd_port", port),
	)

	return nil
}
