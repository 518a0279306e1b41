package signals

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors describing the sampler.
type Metrics struct {
	ticks          prometheus.Counter
	tickFaults     prometheus.Counter
	tickOverruns   prometheus.Counter
	snapshots      prometheus.Counter
	sessionsOpened prometheus.Counter
	sessionsOpen   prometheus.Gauge
	filled         prometheus.Gauge
	lateness       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg, unless reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_ticks_total",
			Help: "Poller ticks that appended a sample to both channels.",
		}),
		tickFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_tick_faults_total",
			Help: "Poller ticks skipped because the input lines could not be read.",
		}),
		tickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_tick_overruns_total",
			Help: "Ticks dropped because the poller fell a whole interval behind schedule.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_snapshots_served_total",
			Help: "One-shot snapshots handed to sessions.",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_sessions_opened_total",
			Help: "Sessions opened since start.",
		}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_sessions_open",
			Help: "Sessions currently open.",
		}),
		filled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_samples_filled",
			Help: "Samples currently held per channel.",
		}),
		lateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signals_tick_lateness_seconds",
			Help:    "How long after its deadline each tick fired.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.tickFaults, m.tickOverruns, m.snapshots, m.sessionsOpened,
			m.sessionsOpen, m.filled, m.lateness)
	}
	return m
}

func (m *Metrics) tickSampled(filled int, lateness time.Duration) {
	m.ticks.Inc()
	m.filled.Set(float64(filled))
	if lateness < 0 {
		lateness = 0
	}
	m.lateness.Observe(lateness.Seconds())
}

func (m *Metrics) tickFailed() {
	m.tickFaults.Inc()
}

func (m *Metrics) ticksMissed(n int64) {
	m.tickOverruns.Add(float64(n))
}

func (m *Metrics) snapshotServed() {
	m.snapshots.Inc()
}

func (m *Metrics) sessionOpened(open int) {
	m.sessionsOpened.Inc()
	m.sessionsOpen.Set(float64(open))
}

func (m *Metrics) sessionsChanged(open int) {
	m.sessionsOpen.Set(float64(open))
}

// ServeMetrics exposes the default Prometheus gatherer on addr at /metrics.
// It fails at once if addr cannot be bound; otherwise it returns the server so
// the caller can shut it down.
func ServeMetrics(addr string) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			ProblemLogger.Printf("metrics server on %s: %v", addr, err)
		}
	}()
	return srv, nil
}
