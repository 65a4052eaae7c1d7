// Package harness runs benchmark commands and assembles their measurements.
package harness

import (
	"github.com/weiihann/sirun/metric"
	"github.com/weiihann/sirun/rusage"
)

// Keys of the kernel-reported metrics in every iteration.
const (
	KeyWallTime   = "wall.time"
	KeyUserTime   = "user.time"
	KeySystemTime = "system.time"
	KeyMaxResSize = "max.res.size"
	KeyCPUPct     = "cpu.pct.wall.time"
)

// Keys of the top-level result document.
const (
	KeyVersion      = "version"
	KeyName         = "name"
	KeyVariant      = "variant"
	KeyIterations   = "iterations"
	KeyInstructions = "instructions"
)

var kernelKeys = []string{
	KeyWallTime, KeyUserTime, KeySystemTime, KeyMaxResSize, KeyCPUPct,
}

// kernelPart picks the kernel metrics out of a child's report, in the same
// order kernelMetrics produces them.
func kernelPart(reported *metric.Map) *metric.Map {
	m := metric.NewMap()

	for _, k := range kernelKeys {
		if v, ok := reported.Get(k); ok {
			m.Set(k, v)
		}
	}

	return m
}

// kernelMetrics builds the kernel part of one iteration. Times are in
// microseconds.
func kernelMetrics(wallMicros float64, u rusage.Usage) *metric.Map {
	var pct float64
	if wallMicros > 0 {
		pct = u.CPUTime() * 100 / wallMicros
	}

	m := metric.NewMap()
	m.SetNumber(KeyWallTime, wallMicros)
	m.SetNumber(KeyUserTime, u.UserTime)
	m.SetNumber(KeySystemTime, u.SystemTime)
	m.SetNumber(KeyMaxResSize, u.MaxRSS)
	m.SetNumber(KeyCPUPct, pct)

	return m
}

// iterationResult merges custom metrics after the kernel ones. A custom key
// never replaces a kernel key.
func iterationResult(kernel, custom *metric.Map) *metric.Map {
	out := kernel.Clone()

	custom.Range(func(k string, v metric.Value) bool {
		if !out.Has(k) {
			out.Set(k, v.Clone())
		}

		return true
	})

	return out
}

func (o *Orchestrator) assemble(iterations []metric.Value) *metric.Map {
	result := metric.NewMap()

	if o.env.HasVersion {
		result.SetString(KeyVersion, o.env.Version)
	}
	if o.cfg.Name != "" {
		result.SetString(KeyName, o.cfg.Name)
	}
	if o.cfg.Variant != "" {
		result.SetString(KeyVariant, o.cfg.Variant)
	}

	result.Set(KeyIterations, metric.Sequence(iterations...))

	return result
}
