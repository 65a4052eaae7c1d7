package harness

import (
	"fmt"
	"os"
	"syscall"
)

// ExitStatus is how a spawned process ended.
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

func statusOf(state *os.ProcessState) ExitStatus {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal()}
	}

	return ExitStatus{Code: state.ExitCode()}
}

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool {
	return !s.Signaled && s.Code == 0
}

// Fatal reports an exit code in [1,128], which aborts the whole run.
// Codes above 128 follow the POSIX shell convention of 128+signal and are
// treated like signal termination: the measurement is kept.
func (s ExitStatus) Fatal() bool {
	return !s.Signaled && s.Code >= 1 && s.Code <= 128
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("terminated by signal %s", s.Signal)
	}

	return fmt.Sprintf("exit code %d", s.Code)
}
