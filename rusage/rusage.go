// Package rusage samples the kernel's resource accounting for the reaped
// children of the calling process.
package rusage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Usage summarises the resources consumed by reaped children.
type Usage struct {
	// User-mode and kernel-mode CPU time in microseconds.
	UserTime   float64
	SystemTime float64

	// Maximum resident set size in the platform's ru_maxrss units
	// (kilobytes on Linux, bytes on Darwin).
	MaxRSS float64
}

// Sample returns the cumulative usage of all children of the calling
// process that have been waited for.
func Sample() (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		return Usage{}, fmt.Errorf("getrusage: %w", err)
	}

	return Usage{
		UserTime:   micros(ru.Utime),
		SystemTime: micros(ru.Stime),
		MaxRSS:     float64(ru.Maxrss),
	}, nil
}

// Sub returns u minus earlier, field by field.
func (u Usage) Sub(earlier Usage) Usage {
	return Usage{
		UserTime:   u.UserTime - earlier.UserTime,
		SystemTime: u.SystemTime - earlier.SystemTime,
		MaxRSS:     u.MaxRSS - earlier.MaxRSS,
	}
}

// CPUTime returns user plus system time in microseconds.
func (u Usage) CPUTime() float64 {
	return u.UserTime + u.SystemTime
}

func micros(tv unix.Timeval) float64 {
	return float64(int64(tv.Sec)*1_000_000 + int64(tv.Usec))
}
