package harness

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

const profilerTool = "valgrind"

// cachegrindArgs pin the cache model so instruction counts are comparable
// across hosts.
var cachegrindArgs = []string{
	"--tool=cachegrind",
	"--trace-children=yes",
	"--I1=32768,8,64",
	"--D1=32768,8,64",
	"--LL=8388608,16,64",
}

// profile counts the instructions of one extra run under cachegrind. The
// second return is false when profiling is disabled or valgrind is missing.
func (o *Orchestrator) profile(ctx context.Context) (float64, bool, error) {
	if !o.cfg.Cachegrind {
		return 0, false, nil
	}

	tool, err := exec.LookPath(profilerTool)
	if err != nil {
		o.logger.WarnContext(ctx, "cachegrind requested but valgrind is not installed")
		return 0, false, nil
	}

	if err := o.setup(ctx); err != nil {
		return 0, false, err
	}

	argv := make([]string, 0, 1+len(cachegrindArgs)+len(o.cfg.Run))
	argv = append(argv, tool)
	argv = append(argv, cachegrindArgs...)
	argv = append(argv, o.cfg.Run...)

	o.logger.InfoContext(ctx, "counting instructions",
		slog.String("tool", tool),
	)

	_, stderr, status, err := o.runner.Output(ctx, argv)
	if err != nil {
		return 0, false, fmt.Errorf("cachegrind: %w", err)
	}

	if !status.Success() {
		o.logger.WarnContext(ctx, "cachegrind run ended abnormally",
			slog.String("status", status.String()),
		)
	}

	if err := o.teardown(ctx); err != nil {
		return 0, false, err
	}

	instructions, err := ParseInstructions(stderr)
	if err != nil {
		return 0, false, err
	}

	return instructions, true, nil
}

// ParseInstructions sums the "I   refs:" lines of cachegrind output. Each
// line contributes its last field with thousands separators removed.
func ParseInstructions(output []byte) (float64, error) {
	var total float64

	// The measured program's stderr is mixed in; lines have no length bound.
	for _, line := range bytes.Split(output, []byte("\n")) {
		if !bytes.Contains(line, []byte("I   refs:")) {
			continue
		}

		fields := strings.Fields(string(line))
		last := strings.ReplaceAll(fields[len(fields)-1], ",", "")

		n, err := strconv.ParseFloat(last, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid number %q", ErrProfilerOutput, last)
		}

		total += n
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: no instructions parsed", ErrProfilerOutput)
	}

	return total, nil
}
