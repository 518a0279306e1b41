// Package pins provides the GPIO line backends used by the sampler and the
// signal generator: Linux GPIO character devices, the periph.io pin registry,
// and a simulated square-wave source for running without hardware.
package pins

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Consumer is the label attached to requested lines.
const Consumer = "signals_reader"

// InputPins reads the instantaneous level of the two sampled lines.
type InputPins interface {
	Levels() (a, b int, err error)
	Close() error
}

// OutputPins drives the two generated lines.
type OutputPins interface {
	SetLevels(a, b int) error
	Close() error
}

// Config selects a backend and names the lines it should use.
type Config struct {
	Backend string `mapstructure:"backend"` // cdev, periph or simulated
	Chip    string `mapstructure:"chip"`
	InputA  int    `mapstructure:"input_a"`
	InputB  int    `mapstructure:"input_b"`
	OutputA int    `mapstructure:"output_a"`
	OutputB int    `mapstructure:"output_b"`
	Bias    string `mapstructure:"bias"` // "", pull-up or pull-down

	// Half periods of the simulated backend's square waves.
	SimHalfPeriodA time.Duration `mapstructure:"sim_half_period_a"`
	SimHalfPeriodB time.Duration `mapstructure:"sim_half_period_b"`
}

// Validate checks the parts of the configuration that do not need hardware.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "cdev", "periph":
		if c.InputA == c.InputB {
			return errors.Errorf("input lines must differ, both are %d", c.InputA)
		}
		if c.OutputA == c.OutputB {
			return errors.Errorf("output lines must differ, both are %d", c.OutputA)
		}
	case "simulated":
		if c.SimHalfPeriodA <= 0 || c.SimHalfPeriodB <= 0 {
			return errors.Errorf("simulated half periods must be positive, got %v and %v",
				c.SimHalfPeriodA, c.SimHalfPeriodB)
		}
	default:
		return errors.Errorf("unknown pin backend %q (want cdev, periph or simulated)", c.Backend)
	}
	switch c.Bias {
	case "", "pull-up", "pull-down":
	default:
		return errors.Errorf("unknown bias %q (want pull-up, pull-down or empty)", c.Bias)
	}
	return nil
}

// OpenInputs requests the two input lines from the configured backend.
func OpenInputs(c Config) (InputPins, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var in InputPins
	var err error
	switch strings.ToLower(c.Backend) {
	case "cdev":
		in, err = RequestCdevInputs(c.Chip, c.InputA, c.InputB, c.Bias)
	case "periph":
		in, err = RequestPeriphInputs(c.InputA, c.InputB, c.Bias)
	default:
		in = NewSquareWaves(c.SimHalfPeriodA, c.SimHalfPeriodB)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// OpenOutputs requests the two output lines from the configured backend.
func OpenOutputs(c Config) (OutputPins, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var out OutputPins
	var err error
	switch strings.ToLower(c.Backend) {
	case "cdev":
		out, err = RequestCdevOutputs(c.Chip, c.OutputA, c.OutputB)
	case "periph":
		out, err = RequestPeriphOutputs(c.OutputA, c.OutputB)
	default:
		out = &Latch{}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
