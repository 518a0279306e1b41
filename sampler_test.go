package signals

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/EzeErlicher/signals/internal/asyncbufio"
	"github.com/EzeErlicher/signals/internal/pins"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingPins never manages a read.
type failingPins struct {
	closed bool
}

func (f *failingPins) Levels() (int, int, error) { return 0, 0, errors.New("bus error") }
func (f *failingPins) Close() error              { f.closed = true; return nil }

func TestNewSamplerValidation(t *testing.T) {
	_, err := NewSampler(SamplerSetup{Capacity: 5, Tick: time.Millisecond})
	assert.True(t, errors.Is(err, ErrBadConfig))
	_, err = NewSampler(SamplerSetup{Inputs: &pins.Latch{}, Capacity: 0, Tick: time.Millisecond})
	assert.True(t, errors.Is(err, ErrBadConfig))
	_, err = NewSampler(SamplerSetup{Inputs: &pins.Latch{}, Capacity: 5})
	assert.True(t, errors.Is(err, ErrBadConfig))
}

func TestSamplerEndToEnd(t *testing.T) {
	var trace bytes.Buffer
	tw := asyncbufio.NewWriter(&trace, 100, time.Hour)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	pub := &fakePublisher{}
	latch := &pins.Latch{}
	latch.SetLevels(0, 1)

	sampler, err := NewSampler(SamplerSetup{
		Inputs:   latch,
		Capacity: 4,
		Tick:     time.Millisecond,
		Metrics:  metrics,
		Trace:    tw,
		Updater:  NewClientUpdater(pub),
	})
	require.Nil(t, err)
	require.Nil(t, sampler.Start())
	require.Eventually(t, func() bool { return sampler.Poller.Ticks() >= 6 }, 2*time.Second, time.Millisecond)

	s := sampler.OpenSession()
	data, err := s.Snapshot()
	require.Nil(t, err)
	assert.Equal(t, "00001111", string(data))
	require.Nil(t, sampler.CloseSession(s.ID))
	assert.True(t, errors.Is(sampler.CloseSession(s.ID), ErrInvalidSession))

	require.Nil(t, sampler.Shutdown())
	assert.Nil(t, sampler.Shutdown())
	assert.False(t, sampler.Status().Running)

	// Every successful tick produced one trace line.
	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	assert.Equal(t, int(sampler.Poller.Ticks()), len(lines))
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, " 01"), "trace line %q", line)
	}

	assert.Equal(t, float64(sampler.Poller.Ticks()), testutil.ToFloat64(metrics.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.snapshots))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sessionsOpened))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.sessionsOpen))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.filled))
	assert.Contains(t, pub.tags(), "SNAPSHOT")

	sampler.TicksMissed(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.tickOverruns))

	activity := sampler.ActivityMessage()
	assert.Equal(t, sampler.RunID, activity.ID)
	assert.Equal(t, 4, activity.Capacity)
	assert.Equal(t, "absolute", activity.Schedule)
}

func TestSamplerReportsFaults(t *testing.T) {
	pub := &fakePublisher{}
	inputs := &failingPins{}
	sampler, err := NewSampler(SamplerSetup{
		Inputs:   inputs,
		Capacity: 4,
		Tick:     time.Millisecond,
		Updater:  NewClientUpdater(pub),
	})
	require.Nil(t, err)
	require.Nil(t, sampler.Start())
	require.Eventually(t, func() bool { return sampler.Poller.Faults() >= 20 }, 2*time.Second, time.Millisecond)
	require.Nil(t, sampler.Shutdown())
	assert.True(t, inputs.closed)
	assert.Equal(t, 0, sampler.Store.Filled(ChannelA))

	// Faults are reported at most once a second.
	faultReports := 0
	for _, tag := range pub.tags() {
		if tag == "TICKFAULT" {
			faultReports++
		}
	}
	assert.GreaterOrEqual(t, faultReports, 1)
	assert.Less(t, faultReports, 20)
}

func TestStatusReportsBuild(t *testing.T) {
	saved := Build
	defer func() { Build = saved }()
	Build.Summary = "signals_reader version 0.3.1 (git commit abc of today)"
	Build.Host = "bench-pi"
	Build.Date = "2026-10-17"

	sampler, err := NewSampler(SamplerSetup{Inputs: &pins.Latch{}, Capacity: 4, Tick: time.Millisecond})
	require.Nil(t, err)
	defer sampler.Shutdown()
	status := sampler.Status()
	assert.Equal(t, Build.Summary, status.Summary)
	assert.Equal(t, "bench-pi", status.Host)
	assert.Equal(t, "2026-10-17", status.BuildDate)
	assert.Equal(t, int64(0), status.Overruns)
	assert.Equal(t, "bench-pi", sampler.ActivityMessage().Hostname)
}
