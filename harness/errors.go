package harness

import (
	"errors"
	"fmt"
)

var (
	ErrSetupFailed    = errors.New("setup script did not complete successfully")
	ErrTeardownFailed = errors.New("teardown script did not complete successfully")
	ErrProfilerOutput = errors.New("bad cachegrind output")
	ErrNoReport       = errors.New("iteration child reported no measurement")
)

// ExitError aborts the invocation with a specific exit code, normally the
// measured command's own.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
