package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EzeErlicher/signals/internal/pins"
)

// DefaultGranularity is the generator's loop step; half-periods are multiples of it.
const DefaultGranularity = 10 * time.Millisecond

// GeneratorSettings configures a Generator.
type GeneratorSettings struct {
	HalfPeriods [NumChannels]time.Duration
	Granularity time.Duration
	Schedule    Schedule
}

// Validate requires each half-period to be a positive multiple of the granularity.
func (gs GeneratorSettings) Validate() error {
	if gs.Granularity <= 0 {
		return fmt.Errorf("generator granularity %v, want > 0: %w", gs.Granularity, ErrBadConfig)
	}
	for i, h := range gs.HalfPeriods {
		if h <= 0 || h%gs.Granularity != 0 {
			return fmt.Errorf("half-period of channel %v is %v, want a positive multiple of %v: %w",
				Channel(i), h, gs.Granularity, ErrBadConfig)
		}
	}
	return nil
}

// Generator drives two outputs as square waves with independent half-periods.
type Generator struct {
	settings GeneratorSettings
	out      pins.OutputPins
	levels   [NumChannels]int
	toggles  [NumChannels]int64
	sync.Mutex
}

// NewGenerator checks settings and returns a Generator that will drive out.
func NewGenerator(settings GeneratorSettings, out pins.OutputPins) (*Generator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Generator{settings: settings, out: out}, nil
}

// Toggles returns how many times each output has changed level.
func (g *Generator) Toggles() [NumChannels]int64 {
	g.Lock()
	defer g.Unlock()
	return g.toggles
}

// Levels returns the level each output was last driven to.
func (g *Generator) Levels() [NumChannels]int {
	g.Lock()
	defer g.Unlock()
	return g.levels
}

// Run drives both outputs low, then toggles each once per half-period until ctx
// is cancelled. Both outputs are driven low again before Run returns.
func (g *Generator) Run(ctx context.Context) error {
	if err := g.drive(0, 0); err != nil {
		return err
	}
	defer func() {
		if err := g.drive(0, 0); err != nil {
			ProblemLogger.Printf("generator could not drive outputs low: %v", err)
		}
	}()
	UpdateLogger.Printf("generator running: half-periods A=%v B=%v, %v schedule",
		g.settings.HalfPeriods[0], g.settings.HalfPeriods[1], g.settings.Schedule)
	if g.settings.Schedule == ScheduleRelative {
		g.runCounters(ctx)
	} else {
		g.runDeadlines(ctx)
	}
	return nil
}

// runDeadlines keeps an absolute toggle deadline per channel.
func (g *Generator) runDeadlines(ctx context.Context) {
	start := time.Now()
	var next [NumChannels]time.Time
	for i, h := range g.settings.HalfPeriods {
		next[i] = start.Add(h)
	}
	earliest := func() time.Duration {
		d := time.Until(next[0])
		if d2 := time.Until(next[1]); d2 < d {
			d = d2
		}
		return d
	}
	timer := time.NewTimer(earliest())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			for i, h := range g.settings.HalfPeriods {
				if now.Before(next[i]) {
					continue
				}
				g.toggle(i)
				next[i] = next[i].Add(h)
				if now.Sub(next[i]) >= h {
					ProblemLogger.Printf("generator channel %v fell behind by %v; re-anchoring", Channel(i), now.Sub(next[i]))
					next[i] = now.Add(h)
				}
			}
			timer.Reset(earliest())
		}
	}
}

// runCounters advances each channel's counter by one granularity per loop,
// whatever time really passed.
func (g *Generator) runCounters(ctx context.Context) {
	var counters [NumChannels]time.Duration
	step := g.settings.Granularity
	timer := time.NewTimer(step)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			for i, h := range g.settings.HalfPeriods {
				counters[i] += step
				if counters[i] >= h {
					g.toggle(i)
					counters[i] = 0
				}
			}
			timer.Reset(step)
		}
	}
}

func (g *Generator) toggle(i int) {
	g.Lock()
	g.levels[i] ^= 1
	g.toggles[i]++
	a, b, level := g.levels[0], g.levels[1], g.levels[i]
	g.Unlock()
	if err := g.out.SetLevels(a, b); err != nil {
		ProblemLogger.Printf("generator could not set output %v: %v", Channel(i), err)
		return
	}
	UpdateLogger.Printf("output %v set to %d", Channel(i), level)
}

func (g *Generator) drive(a, b int) error {
	g.Lock()
	g.levels = [NumChannels]int{a, b}
	g.Unlock()
	return g.out.SetLevels(a, b)
}
