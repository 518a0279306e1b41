package signals

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/EzeErlicher/signals/internal/asyncbufio"
	"github.com/EzeErlicher/signals/internal/pins"
	"github.com/EzeErlicher/signals/internal/sampledb"
	"github.com/oklog/ulid/v2"
)

// SamplerSetup collects what a Sampler is built from. Only Inputs is required;
// a nil Metrics, DB, Trace or Updater turns that concern off.
type SamplerSetup struct {
	Inputs   pins.InputPins
	Capacity int
	Tick     time.Duration
	Schedule Schedule
	Metrics  *Metrics
	DB       *sampledb.Connection
	Trace    *asyncbufio.Writer
	Updater  *ClientUpdater
}

// Sampler owns one Store, the Poller that fills it and the sessions that read it.
type Sampler struct {
	RunID    string
	Store    *Store
	Sessions *SessionTable
	Poller   *Poller

	inputs  pins.InputPins
	metrics *Metrics
	db      *sampledb.Connection
	trace   *asyncbufio.Writer
	updater *ClientUpdater

	lastFaultReport time.Time // touched only on the poller goroutine
	shutdownOnce    sync.Once
}

// TickFaultMessage is published (at most once per second) while reads fail.
type TickFaultMessage struct {
	Faults int64
	Error  string
}

// SnapshotServedMessage is published after each snapshot is handed out.
type SnapshotServedMessage struct {
	SessionID string
	Filled    int
}

// ServerStatus is the status reported to clients.
type ServerStatus struct {
	Running        bool
	RunID          string
	Version        string
	Summary        string
	BuildDate      string
	Host           string
	Capacity       int
	Filled         int
	TickMs         float64
	Schedule       string
	Ticks          int64
	Faults         int64
	Overruns       int64
	SessionsOpen   int
	SessionsOpened int64
	UptimeSec      float64
}

// NewSampler wires a Store, SessionTable and Poller together. The Poller is not started.
func NewSampler(setup SamplerSetup) (*Sampler, error) {
	if setup.Inputs == nil {
		return nil, fmt.Errorf("sampler needs input pins: %w", ErrBadConfig)
	}
	if setup.Capacity <= 0 {
		return nil, fmt.Errorf("sampler capacity %d, want > 0: %w", setup.Capacity, ErrBadConfig)
	}
	store := NewStore(setup.Capacity)
	poller, err := NewPoller(store, setup.Inputs, setup.Tick, setup.Schedule)
	if err != nil {
		return nil, err
	}
	s := &Sampler{
		RunID:    ulid.Make().String(),
		Store:    store,
		Sessions: NewSessionTable(store),
		Poller:   poller,
		inputs:   setup.Inputs,
		metrics:  setup.Metrics,
		db:       setup.DB,
		trace:    setup.Trace,
		updater:  setup.Updater,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.db == nil {
		s.db = sampledb.DummyConnection()
	}
	if s.updater == nil {
		s.updater = NewClientUpdater(DiscardPublisher())
	}
	poller.SetObserver(s)
	s.Sessions.SetServeHook(s.snapshotServed)
	return s, nil
}

// SetRecorder routes served snapshots to db. Call it before any session is served.
func (s *Sampler) SetRecorder(db *sampledb.Connection) {
	s.db = db
}

// ActivityMessage describes this run for the activity database.
func (s *Sampler) ActivityMessage() *sampledb.ActivityMessage {
	host := Build.Host
	if host == "" {
		host, _ = os.Hostname()
	}
	return &sampledb.ActivityMessage{
		ID:        s.RunID,
		Hostname:  host,
		Githash:   Build.Githash,
		Version:   Build.Version,
		GoVersion: runtime.Version(),
		CPUs:      runtime.NumCPU(),
		Capacity:  s.Store.Capacity(),
		Tick:      s.Poller.Tick(),
		Schedule:  s.Poller.schedule.String(),
		Start:     StartTime,
	}
}

// Start arms the poller.
func (s *Sampler) Start() error {
	if err := s.Poller.Start(); err != nil {
		return err
	}
	UpdateLogger.Printf("sampler %s started: capacity %d, tick %v, %v schedule",
		s.RunID, s.Store.Capacity(), s.Poller.Tick(), s.Poller.schedule)
	s.BroadcastStatus()
	return nil
}

// Shutdown stops the poller, then releases the input lines, the trace and the
// status publisher, in that order. Later calls do nothing.
func (s *Sampler) Shutdown() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.shutdownOnce.Do(func() {
		if err := s.Poller.Stop(); err != nil && err != ErrNotActive {
			keep(err)
		}
		keep(s.inputs.Close())
		if s.trace != nil {
			keep(s.trace.Close())
		}
		s.BroadcastStatus()
		keep(s.updater.Close())
		UpdateLogger.Printf("sampler %s stopped after %d ticks and %d faults",
			s.RunID, s.Poller.Ticks(), s.Poller.Faults())
	})
	return firstErr
}

// Status returns the current ServerStatus.
func (s *Sampler) Status() ServerStatus {
	return ServerStatus{
		Running:        s.Poller.Running(),
		RunID:          s.RunID,
		Version:        Build.Version,
		Summary:        Build.Summary,
		BuildDate:      Build.Date,
		Host:           Build.Host,
		Capacity:       s.Store.Capacity(),
		Filled:         s.Store.Filled(ChannelA),
		TickMs:         float64(s.Poller.Tick()) / float64(time.Millisecond),
		Schedule:       s.Poller.schedule.String(),
		Ticks:          s.Poller.Ticks(),
		Faults:         s.Poller.Faults(),
		Overruns:       s.Poller.Overruns(),
		SessionsOpen:   s.Sessions.Len(),
		SessionsOpened: s.Sessions.Opened(),
		UptimeSec:      time.Since(StartTime).Seconds(),
	}
}

// BroadcastStatus publishes the current status under the STATUS tag.
func (s *Sampler) BroadcastStatus() {
	s.updater.Send("STATUS", s.Status())
}

// OpenSession opens a new session.
func (s *Sampler) OpenSession() *Session {
	session := s.Sessions.Open()
	s.metrics.sessionOpened(s.Sessions.Len())
	UpdateLogger.Printf("session %s opened", session.ID)
	return session
}

// CloseSession closes session id.
func (s *Sampler) CloseSession(id string) error {
	if err := s.Sessions.Close(id); err != nil {
		return err
	}
	s.metrics.sessionsChanged(s.Sessions.Len())
	UpdateLogger.Printf("session %s closed", id)
	return nil
}

// ReapIdleSessions closes sessions unused for longer than maxIdle.
func (s *Sampler) ReapIdleSessions(maxIdle time.Duration) int {
	n := s.Sessions.ReapIdle(maxIdle)
	if n > 0 {
		s.metrics.sessionsChanged(s.Sessions.Len())
		UpdateLogger.Printf("reaped %d session(s) idle for more than %v", n, maxIdle)
	}
	return n
}

// TickSampled implements TickObserver.
func (s *Sampler) TickSampled(a, b Sample, lateness time.Duration) {
	s.metrics.tickSampled(s.Store.Filled(ChannelA), lateness)
	if s.trace != nil {
		line := fmt.Appendf(nil, "%d %d%d\n", time.Now().UnixMilli(), a, b)
		s.trace.Write(line)
	}
}

// TicksMissed implements TickObserver.
func (s *Sampler) TicksMissed(n int64) {
	s.metrics.ticksMissed(n)
}

// TickFailed implements TickObserver.
func (s *Sampler) TickFailed(err error) {
	s.metrics.tickFailed()
	now := time.Now()
	if now.Sub(s.lastFaultReport) < time.Second {
		return
	}
	s.lastFaultReport = now
	s.updater.Send("TICKFAULT", TickFaultMessage{Faults: s.Poller.Faults(), Error: err.Error()})
}

// snapshotServed runs with the session locked; it must not call back into the session.
func (s *Sampler) snapshotServed(session *Session, data []byte, filled int) {
	s.metrics.snapshotServed()
	s.db.RecordSnapshot(&sampledb.SnapshotMessage{
		SessionID: session.ID,
		Filled:    filled,
		BitsA:     string(data[:filled]),
		BitsB:     string(data[filled:]),
		Served:    time.Now(),
	})
	s.updater.Send("SNAPSHOT", SnapshotServedMessage{SessionID: session.ID, Filled: filled})
	UpdateLogger.Printf("session %s read %d samples per channel", session.ID, filled)
}
