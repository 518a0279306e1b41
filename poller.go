package signals

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LevelReader supplies the instantaneous level of both input lines.
type LevelReader interface {
	Levels() (a, b int, err error)
}

// PollerState is used to indicate the active/inactive/transition state of the poller
type PollerState int

// Names for the possible values of PollerState
const (
	Inactive PollerState = iota // Poller is not running
	Active                      // Poller is armed or firing
	Stopping                    // Poller is in transition to Inactive state
)

// Schedule decides how the next tick is placed after one fires.
type Schedule int

// Names for the possible values of Schedule
const (
	// ScheduleAbsolute places ticks at fixed deadlines (previous deadline + tick),
	// so lateness does not accumulate.
	ScheduleAbsolute Schedule = iota
	// ScheduleRelative places the next tick one interval after the previous one
	// finished, so every bit of lateness carries forward.
	ScheduleRelative
)

// ParseSchedule converts "absolute" or "relative" to a Schedule.
func ParseSchedule(s string) (Schedule, error) {
	switch strings.ToLower(s) {
	case "", "absolute":
		return ScheduleAbsolute, nil
	case "relative":
		return ScheduleRelative, nil
	}
	return ScheduleAbsolute, fmt.Errorf("schedule %q, want absolute or relative: %w", s, ErrBadConfig)
}

func (s Schedule) String() string {
	if s == ScheduleRelative {
		return "relative"
	}
	return "absolute"
}

// DefaultTick is the reference sampling interval.
const DefaultTick = 200 * time.Millisecond

// TickObserver hears about every tick, successful or not. Methods run on the
// poller goroutine and must not block.
type TickObserver interface {
	TickSampled(a, b Sample, lateness time.Duration)
	TickFailed(err error)
	TicksMissed(n int64)
}

// Poller samples the input lines once per tick and appends the levels to a Store.
type Poller struct {
	store    *Store
	pins     LevelReader
	tick     time.Duration
	schedule Schedule
	observer TickObserver

	ticks     atomic.Int64
	faults    atomic.Int64
	overruns  atomic.Int64
	state     PollerState
	stateLock sync.Mutex // guards state and abortSelf
	abortSelf chan struct{}
	runDone   sync.WaitGroup
}

// NewPoller creates a Poller that reads pins every tick into store.
func NewPoller(store *Store, pins LevelReader, tick time.Duration, schedule Schedule) (*Poller, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("poller tick %v, want > 0: %w", tick, ErrBadConfig)
	}
	return &Poller{store: store, pins: pins, tick: tick, schedule: schedule}, nil
}

// SetObserver registers o to hear about ticks. Call it before Start.
func (p *Poller) SetObserver(o TickObserver) {
	p.observer = o
}

// Tick returns the configured interval.
func (p *Poller) Tick() time.Duration {
	return p.tick
}

// Ticks returns how many ticks have appended samples.
func (p *Poller) Ticks() int64 {
	return p.ticks.Load()
}

// Faults returns how many ticks were skipped because the lines could not be read.
func (p *Poller) Faults() int64 {
	return p.faults.Load()
}

// Overruns returns how many ticks were dropped because the poller fell a whole
// interval or more behind its absolute schedule.
func (p *Poller) Overruns() int64 {
	return p.overruns.Load()
}

// State returns the current PollerState.
func (p *Poller) State() PollerState {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.state
}

// Running tells whether the poller is armed or firing.
func (p *Poller) Running() bool {
	return p.State() == Active
}

// Start arms the poller. The first tick fires one interval from now.
func (p *Poller) Start() error {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	if p.state != Inactive {
		return ErrAlreadyActive
	}
	p.state = Active
	p.abortSelf = make(chan struct{})
	p.runDone.Add(1)
	go p.run(p.abortSelf)
	return nil
}

// Stop cancels the pending tick and returns only after any in-flight tick has
// finished, so nothing touches the Store once Stop returns.
func (p *Poller) Stop() error {
	p.stateLock.Lock()
	switch p.state {
	case Inactive:
		p.stateLock.Unlock()
		return ErrNotActive

	case Active:
		p.state = Stopping
		closeIfOpen(p.abortSelf)

	case Stopping:
		// Another caller is stopping it; wait alongside them.
	}
	p.stateLock.Unlock()

	p.runDone.Wait()
	return nil
}

func closeIfOpen(c chan struct{}) {
	select {
	case <-c:
		log.Println("warning: you tried to close a channel twice")
	default:
		close(c)
	}
}

// run alternates between waiting for the deadline (armed) and sampling (firing)
// until abort is closed.
func (p *Poller) run(abort <-chan struct{}) {
	defer func() {
		p.stateLock.Lock()
		p.state = Inactive
		p.stateLock.Unlock()
		p.runDone.Done()
	}()

	deadline := time.Now().Add(p.tick)
	timer := time.NewTimer(p.tick)
	defer timer.Stop()

	for {
		select {
		case <-abort:
			return

		case fired := <-timer.C:
			// A tick that became ready together with abort must not sample.
			select {
			case <-abort:
				return
			default:
			}
			p.fire(fired.Sub(deadline))
			deadline = p.nextDeadline(deadline, time.Now())
			timer.Reset(time.Until(deadline))
		}
	}
}

// fire reads each line once and appends both samples. A read failure skips the tick.
func (p *Poller) fire(lateness time.Duration) {
	a, b, err := p.pins.Levels()
	if err != nil {
		n := p.faults.Add(1)
		ProblemLogger.Printf("tick skipped (%d so far): %v", n, err)
		if p.observer != nil {
			p.observer.TickFailed(err)
		}
		return
	}
	sa, sb := SampleFromLevel(a), SampleFromLevel(b)
	p.store.AppendPair(sa, sb)
	p.ticks.Add(1)
	if p.observer != nil {
		p.observer.TickSampled(sa, sb, lateness)
	}
}

// nextDeadline computes when the following tick should fire, given the deadline of
// the tick that just fired and the current time.
func (p *Poller) nextDeadline(previous, now time.Time) time.Time {
	if p.schedule == ScheduleRelative {
		return now.Add(p.tick)
	}
	next := previous.Add(p.tick)
	if behind := now.Sub(next); behind >= p.tick {
		// Missed at least one whole tick: re-anchor rather than firing a burst.
		missed := int64(behind / p.tick)
		p.overruns.Add(missed)
		ProblemLogger.Printf("poller fell %v behind schedule; dropping %d tick(s)", behind, missed)
		if p.observer != nil {
			p.observer.TicksMissed(missed)
		}
		return now.Add(p.tick)
	}
	return next
}
