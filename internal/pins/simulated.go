package pins

import (
	"sync"
	"time"
)

// SquareWaves is an InputPins that synthesizes two square waves from the wall
// clock, so the sampler can run without any wiring.
type SquareWaves struct {
	start       time.Time
	halfPeriods [2]time.Duration
	now         func() time.Time
}

// NewSquareWaves creates square waves with the given half periods, both starting low now.
func NewSquareWaves(halfA, halfB time.Duration) *SquareWaves {
	return &SquareWaves{
		start:       time.Now(),
		halfPeriods: [2]time.Duration{halfA, halfB},
		now:         time.Now,
	}
}

func (sw *SquareWaves) level(i int, elapsed time.Duration) int {
	return int((elapsed / sw.halfPeriods[i]) % 2)
}

// Levels returns the level of each wave at the current time.
func (sw *SquareWaves) Levels() (int, int, error) {
	elapsed := sw.now().Sub(sw.start)
	return sw.level(0, elapsed), sw.level(1, elapsed), nil
}

// Close is a no-op.
func (sw *SquareWaves) Close() error {
	return nil
}

// Latch is an OutputPins that only remembers what it was last driven to.
// It also serves as InputPins, so a generator and a sampler in one process can
// be wired to each other.
type Latch struct {
	a, b   int
	writes int
	sync.Mutex
}

// SetLevels records both levels.
func (l *Latch) SetLevels(a, b int) error {
	l.Lock()
	defer l.Unlock()
	l.a, l.b = a, b
	l.writes++
	return nil
}

// Levels returns the last levels written.
func (l *Latch) Levels() (int, int, error) {
	l.Lock()
	defer l.Unlock()
	return l.a, l.b, nil
}

// Writes returns how many times SetLevels has been called.
func (l *Latch) Writes() int {
	l.Lock()
	defer l.Unlock()
	return l.writes
}

// Close is a no-op.
func (l *Latch) Close() error {
	return nil
}
