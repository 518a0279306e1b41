package pins

import (
	"strconv"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

func periphPin(number int) (gpio.PinIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initialize periph host")
	}
	name := strconv.Itoa(number)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no GPIO pin named %q in the periph registry", name)
	}
	return p, nil
}

func periphPull(bias string) gpio.Pull {
	switch bias {
	case "pull-up":
		return gpio.PullUp
	case "pull-down":
		return gpio.PullDown
	}
	return gpio.PullNoChange
}

func levelOf(l gpio.Level) int {
	if l == gpio.High {
		return 1
	}
	return 0
}

// PeriphInputs reads two pins found through the periph.io registry.
type PeriphInputs struct {
	a, b gpio.PinIO
}

// RequestPeriphInputs configures pins a and b (by number) as inputs without edge detection.
func RequestPeriphInputs(a, b int, bias string) (*PeriphInputs, error) {
	pa, err := periphPin(a)
	if err != nil {
		return nil, err
	}
	pb, err := periphPin(b)
	if err != nil {
		return nil, err
	}
	pull := periphPull(bias)
	if err := pa.In(pull, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "set pin %s as input", pa)
	}
	if err := pb.In(pull, gpio.NoEdge); err != nil {
		pa.Halt()
		return nil, errors.Wrapf(err, "set pin %s as input", pb)
	}
	return &PeriphInputs{a: pa, b: pb}, nil
}

// Levels returns the current level of both pins.
func (pi *PeriphInputs) Levels() (int, int, error) {
	return levelOf(pi.a.Read()), levelOf(pi.b.Read()), nil
}

// Close halts both pins.
func (pi *PeriphInputs) Close() error {
	errA := pi.a.Halt()
	errB := pi.b.Halt()
	if errA != nil {
		return errA
	}
	return errB
}

// PeriphOutputs drives two pins found through the periph.io registry.
type PeriphOutputs struct {
	a, b gpio.PinIO
}

// RequestPeriphOutputs configures pins a and b (by number) as outputs, both low.
func RequestPeriphOutputs(a, b int) (*PeriphOutputs, error) {
	pa, err := periphPin(a)
	if err != nil {
		return nil, err
	}
	pb, err := periphPin(b)
	if err != nil {
		return nil, err
	}
	if err := pa.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "set pin %s as output", pa)
	}
	if err := pb.Out(gpio.Low); err != nil {
		pa.In(gpio.PullNoChange, gpio.NoEdge)
		return nil, errors.Wrapf(err, "set pin %s as output", pb)
	}
	return &PeriphOutputs{a: pa, b: pb}, nil
}

// SetLevels drives both pins.
func (po *PeriphOutputs) SetLevels(a, b int) error {
	if err := po.a.Out(gpio.Level(a != 0)); err != nil {
		return err
	}
	return po.b.Out(gpio.Level(b != 0))
}

// Close reverts both pins to inputs.
func (po *PeriphOutputs) Close() error {
	errA := po.a.In(gpio.PullNoChange, gpio.NoEdge)
	errB := po.b.In(gpio.PullNoChange, gpio.NoEdge)
	if errA != nil {
		return errA
	}
	return errB
}
