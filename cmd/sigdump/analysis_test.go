package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/EzeErlicher/signals"
	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func decode(t *testing.T, s string) []signals.Sample {
	t.Helper()
	a, _, err := signals.DecodeSnapshot([]byte(s + s))
	require.Nil(t, err)
	return a
}

func TestRunLengths(t *testing.T) {
	assert.Nil(t, runLengths(nil))
	assert.Equal(t, []float64{3}, runLengths(decode(t, "111")))
	assert.Equal(t, []float64{2, 5, 5, 1}, runLengths(decode(t, "110000011111"+"0")))
}

func TestAnalyze(t *testing.T) {
	tick := 200 * time.Millisecond
	// A 1 s half-period sampled every 200 ms gives runs of 5.
	rs := analyze(decode(t, "11000001111100000111"), tick)
	assert.Equal(t, 3, rs.Runs)
	assert.Equal(t, 5.0, rs.MeanTicks)
	assert.Equal(t, 0.0, rs.StdTicks)
	assert.Equal(t, time.Second, rs.HalfPeriod)

	rs = analyze(decode(t, "0001110"), tick)
	assert.Equal(t, 1, rs.Runs)
	assert.Equal(t, 600*time.Millisecond, rs.HalfPeriod)

	assert.Equal(t, RunStats{}, analyze(decode(t, "0011"), tick))
}

func TestNpyExport(t *testing.T) {
	a := decode(t, "1100")
	b := decode(t, "0101")
	var buf bytes.Buffer
	require.Nil(t, npyio.Write(&buf, asMatrix(a, b)))

	var m mat.Dense
	require.Nil(t, npyio.Read(&buf, &m))
	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, []float64{1, 1, 0, 0}, mat.Row(nil, 0, &m))
	assert.Equal(t, []float64{0, 1, 0, 1}, mat.Row(nil, 1, &m))
}
