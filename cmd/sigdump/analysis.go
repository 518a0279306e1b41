package main

import (
	"time"

	"github.com/EzeErlicher/signals"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RunStats summarizes the lengths of constant-level runs in one channel.
type RunStats struct {
	Runs       int     // complete runs, not counting the truncated first and last
	MeanTicks  float64 // mean run length in samples
	StdTicks   float64
	HalfPeriod time.Duration // MeanTicks scaled by the sampling tick
}

// runLengths returns the length of every run of equal samples, in order.
func runLengths(samples []signals.Sample) []float64 {
	var runs []float64
	n := 0
	for i, s := range samples {
		if i > 0 && s != samples[i-1] {
			runs = append(runs, float64(n))
			n = 0
		}
		n++
	}
	if n > 0 {
		runs = append(runs, float64(n))
	}
	return runs
}

// analyze estimates the half-period of a square wave sampled every tick. The
// first and last runs may have been cut off by the window and are ignored.
func analyze(samples []signals.Sample, tick time.Duration) RunStats {
	runs := runLengths(samples)
	if len(runs) <= 2 {
		return RunStats{}
	}
	complete := runs[1 : len(runs)-1]
	mean, std := stat.MeanStdDev(complete, nil)
	if len(complete) == 1 {
		std = 0
	}
	return RunStats{
		Runs:       len(complete),
		MeanTicks:  mean,
		StdTicks:   std,
		HalfPeriod: time.Duration(mean * float64(tick)),
	}
}

// asMatrix lays channel A out as row 0 and channel B as row 1.
func asMatrix(a, b []signals.Sample) *mat.Dense {
	m := mat.NewDense(2, max(len(a), 1), nil)
	for i := range a {
		m.Set(0, i, float64(a[i]))
		m.Set(1, i, float64(b[i]))
	}
	return m
}
