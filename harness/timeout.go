package harness

import (
	"fmt"
	"time"
)

// watchTimeout arms the configured timeout for one measured command. If it
// fires before the returned stop is called the whole process exits with
// status 1; children already spawned are left to the OS.
func (o *Orchestrator) watchTimeout() (stop func()) {
	if o.cfg.Timeout == 0 {
		return func() {}
	}

	return watch(o.cfg.TimeoutDuration(), func() {
		o.logger.Error(fmt.Sprintf("timeout of %d seconds exceeded", o.cfg.Timeout))
		o.opts.Exit(1)
	})
}

func watch(d time.Duration, fire func()) (stop func()) {
	t := time.AfterFunc(d, fire)

	return func() { t.Stop() }
}
