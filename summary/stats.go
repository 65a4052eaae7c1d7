package summary

import (
	"math"

	"github.com/aclements/go-moremath/stats"

	"github.com/weiihann/sirun/metric"
)

// Stats describes the observations of one metric.
type Stats struct {
	Mean float64

	// StdDev is the population standard deviation.
	StdDev float64

	// StdDevPct is StdDev as a percentage of Mean, or 0 when Mean is 0.
	StdDevPct float64

	Min float64
	Max float64
}

// Compute returns the statistics of xs, which must not be empty.
func Compute(xs []float64) Stats {
	mean := stats.Mean(xs)

	sq := make([]float64, len(xs))
	for i, x := range xs {
		sq[i] = (x - mean) * (x - mean)
	}
	stddev := math.Sqrt(stats.Mean(sq))

	var pct float64
	if mean != 0 {
		pct = stddev / mean * 100
	}

	lo, hi := stats.Bounds(xs)

	return Stats{
		Mean:      mean,
		StdDev:    stddev,
		StdDevPct: pct,
		Min:       lo,
		Max:       hi,
	}
}

// Map returns s keyed by mean, stddev, stddev_pct, min and max.
func (s Stats) Map() *metric.Map {
	m := metric.NewMap()
	m.SetNumber("mean", s.Mean)
	m.SetNumber("stddev", s.StdDev)
	m.SetNumber("stddev_pct", s.StdDevPct)
	m.SetNumber("min", s.Min)
	m.SetNumber("max", s.Max)

	return m
}
