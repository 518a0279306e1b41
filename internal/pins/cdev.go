//go:build linux

package pins

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// CdevInputs reads two lines of a GPIO character device in a single request.
type CdevInputs struct {
	lines  *gpiocdev.Lines
	values []int
}

// RequestCdevInputs requests lines a and b of chip as inputs, with the given bias.
// Both lines are requested together, so a failure leaves neither held.
func RequestCdevInputs(chip string, a, b int, bias string) (*CdevInputs, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer(Consumer), gpiocdev.AsInput}
	switch bias {
	case "pull-up":
		opts = append(opts, gpiocdev.WithPullUp)
	case "pull-down":
		opts = append(opts, gpiocdev.WithPullDown)
	}
	l, err := gpiocdev.RequestLines(chip, []int{a, b}, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "request input lines %s:%d,%d", chip, a, b)
	}
	return &CdevInputs{lines: l, values: make([]int, 2)}, nil
}

// Levels returns the current level of both lines. Only the poller calls it,
// so the values slice is reused.
func (ci *CdevInputs) Levels() (int, int, error) {
	if err := ci.lines.Values(ci.values); err != nil {
		return 0, 0, errors.Wrap(err, "read input lines")
	}
	return ci.values[0], ci.values[1], nil
}

// Close releases the lines.
func (ci *CdevInputs) Close() error {
	return ci.lines.Close()
}

// CdevOutputs drives two lines of a GPIO character device.
type CdevOutputs struct {
	lines *gpiocdev.Lines
}

// RequestCdevOutputs requests lines a and b of chip as outputs, both initially low.
func RequestCdevOutputs(chip string, a, b int) (*CdevOutputs, error) {
	l, err := gpiocdev.RequestLines(chip, []int{a, b},
		gpiocdev.WithConsumer(Consumer), gpiocdev.AsOutput(0, 0))
	if err != nil {
		return nil, errors.Wrapf(err, "request output lines %s:%d,%d", chip, a, b)
	}
	return &CdevOutputs{lines: l}, nil
}

// SetLevels drives both lines.
func (co *CdevOutputs) SetLevels(a, b int) error {
	return co.lines.SetValues([]int{a, b})
}

// Close reverts the lines to inputs and releases them.
func (co *CdevOutputs) Close() error {
	co.lines.Reconfigure(gpiocdev.AsInput)
	return co.lines.Close()
}
