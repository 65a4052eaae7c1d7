// Package main provides sirun-emit, which reports custom metrics from a
// benchmarked shell command to the running sirun harness.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weiihann/sirun/config"
	"github.com/weiihann/sirun/metric"
	"github.com/weiihann/sirun/statsd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sirun-emit:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sirun-emit key=value...",
		Short: "Send gauges to the sirun metric channel",
		Long: `Sirun-emit sends each key=value pair as a statsd gauge to the harness
listening on 127.0.0.1:$SIRUN_STATSD_PORT, so shell benchmarks can report
custom metrics without writing to stdout.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := parseGauges(args)
			if err != nil {
				return err
			}

			return send(config.LoadEnv().StatsdPort, m)
		},
	}
}

func parseGauges(args []string) (*metric.Map, error) {
	m := metric.NewMap()

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid gauge %q, want key=value", arg)
		}

		if strings.ContainsAny(key, ":|\n") {
			return nil, fmt.Errorf("invalid gauge key %q", key)
		}

		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("gauge %s: %q is not a number", key, value)
		}

		m.SetNumber(key, n)
	}

	return m, nil
}

func send(portEnv string, m *metric.Map) error {
	port, err := statsd.ParsePort(portEnv)
	if err != nil {
		return err
	}

	c, err := statsd.Dial(port)
	if err != nil {
		return err
	}
	defer c.Close()

	return c.Send(m)
}
