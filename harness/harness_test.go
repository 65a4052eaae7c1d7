package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/weiihann/sirun/config"
	"github.com/weiihann/sirun/statsd"
)

// helperEnv switches the test binary into a helper process.
const helperEnv = "SIRUN_TEST_HELPER"

func TestMain(m *testing.M) {
	if env := config.LoadEnv(); env.IsChild() {
		os.Exit(runIterationChild(env))
	}

	switch os.Getenv(helperEnv) {
	case "emit":
		os.Exit(emitHelper())
	case "variant":
		v := os.Getenv(config.EnvVariant)
		fmt.Println(v)
		if v == "0" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	os.Exit(m.Run())
}

// runIterationChild mirrors what the sirun binary does when started as a
// per-iteration child.
func runIterationChild(env config.Env) int {
	cfg, err := config.Decode(env.Iteration)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	err = New(cfg, env, logger, Options{}).RunChild(context.Background())

	var exitErr *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}

// emitHelper reports udp.data:50 to the metric channel and exits with
// SIRUN_TEST_EXIT.
func emitHelper() int {
	port, err := statsd.ParsePort(os.Getenv(config.EnvStatsdPort))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	c, err := statsd.Dial(port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer c.Close()

	if err := c.Gauge("udp.data", 50); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	code, _ := strconv.Atoi(os.Getenv("SIRUN_TEST_EXIT"))

	return code
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		status  ExitStatus
		success bool
		fatal   bool
	}{
		{ExitStatus{Code: 0}, true, false},
		{ExitStatus{Code: 1}, false, true},
		{ExitStatus{Code: 3}, false, true},
		{ExitStatus{Code: 128}, false, true},
		{ExitStatus{Code: 129}, false, false},
		{ExitStatus{Code: 130}, false, false},
		{ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM}, false, false},
	}

	for _, tt := range tests {
		if got := tt.status.Success(); got != tt.success {
			t.Errorf("%s: Success = %v, want %v", tt.status, got, tt.success)
		}
		if got := tt.status.Fatal(); got != tt.fatal {
			t.Errorf("%s: Fatal = %v, want %v", tt.status, got, tt.fatal)
		}
	}
}

func TestRunnerStatus(t *testing.T) {
	r := NewRunner(nil, true, discardLogger())
	ctx := context.Background()

	status, err := r.Run(ctx, []string{"sh", "-c", "exit 3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Code != 3 || status.Signaled {
		t.Errorf("status = %+v, want exit code 3", status)
	}

	status, err = r.Run(ctx, []string{"sh", "-c", "kill -TERM $$"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !status.Signaled || status.Signal != syscall.SIGTERM {
		t.Errorf("status = %+v, want SIGTERM", status)
	}
}

func TestRunnerMissingCommand(t *testing.T) {
	r := NewRunner(nil, true, discardLogger())

	if _, err := r.Run(context.Background(), []string{"/nonexistent/sirun-binary"}); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRunnerEnvironment(t *testing.T) {
	t.Setenv("SIRUN_TEST_INHERITED", "parent")
	t.Setenv("SIRUN_TEST_DROPPED", "parent")

	r := NewRunner([]string{"SIRUN_TEST_OVERLAY=overlay"}, false, discardLogger())
	r.Unset = []string{"SIRUN_TEST_DROPPED"}

	stdout, _, status, err := r.With("SIRUN_TEST_EXTRA=extra").Output(
		context.Background(),
		[]string{"sh", "-c", `echo "$SIRUN_TEST_INHERITED ${SIRUN_TEST_DROPPED-unset} $SIRUN_TEST_OVERLAY $SIRUN_TEST_EXTRA"`},
	)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !status.Success() {
		t.Fatalf("status = %s", status)
	}

	want := "parent unset overlay extra"
	if got := strings.TrimSpace(string(stdout)); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}

	if len(r.Env) != 1 {
		t.Errorf("With modified the receiver overlay: %v", r.Env)
	}
}

func TestParseInstructions(t *testing.T) {
	output := `==1234== Cachegrind, a cache and branch-prediction profiler
==1234== I   refs:      1,234,567
==1234== I1  misses:        1,000
==1235== I   refs:      10,000
==1235== D   refs:      500,000
`

	got, err := ParseInstructions([]byte(output))
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}
	if got != 1244567 {
		t.Errorf("instructions = %v, want 1244567", got)
	}
}

func TestParseInstructionsLongLines(t *testing.T) {
	output := strings.Repeat("x", 70000) + "\n==1== I   refs:      1,234\n"

	got, err := ParseInstructions([]byte(output))
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}
	if got != 1234 {
		t.Errorf("instructions = %v, want 1234", got)
	}
}

func TestParseInstructionsErrors(t *testing.T) {
	inputs := map[string]string{
		"empty":    "",
		"no refs":  "==1== D   refs: 100\n",
		"garbage":  "==1== I   refs: lots\n",
		"zero":     "==1== I   refs: 0\n",
		"negative": "==1== I   refs: -5\n",
	}

	for name, input := range inputs {
		if _, err := ParseInstructions([]byte(input)); !errors.Is(err, ErrProfilerOutput) {
			t.Errorf("%s: err = %v, want ErrProfilerOutput", name, err)
		}
	}
}
