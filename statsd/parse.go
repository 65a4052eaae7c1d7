// Package statsd implements the loopback metric channel through which a
// measured process reports custom metrics to the harness, using the statsd
// gauge line format.
package statsd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/weiihann/sirun/metric"
)

// DefaultPort is the conventional statsd port.
const DefaultPort = 8125

// Parse extracts the metrics in a datagram. Each line has the form
// key:value|type and only the part before the first '|' is used. Lines
// whose value is not a finite number are dropped. A later line for the same
// key replaces an earlier one.
func Parse(data []byte) *metric.Map {
	m := metric.NewMap()

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		body, _, _ := strings.Cut(line, "|")

		key, raw, ok := strings.Cut(body, ":")
		if !ok || key == "" {
			continue
		}

		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}

		m.SetNumber(key, n)
	}

	return m
}

// FormatGauge renders a single gauge line, including the trailing newline.
func FormatGauge(key string, value float64) string {
	return key + ":" + strconv.FormatFloat(value, 'f', -1, 64) + "|g\n"
}

// ParsePort interprets a port setting. An empty string yields DefaultPort
// and "0" requests an ephemeral port.
func ParsePort(s string) (int, error) {
	if s == "" {
		return DefaultPort, nil
	}

	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid statsd port %q", s)
	}

	return port, nil
}
