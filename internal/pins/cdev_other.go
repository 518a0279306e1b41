//go:build !linux

package pins

import "github.com/pkg/errors"

var errNoCdev = errors.New("GPIO character devices are only available on Linux")

// RequestCdevInputs always fails off Linux.
func RequestCdevInputs(chip string, a, b int, bias string) (InputPins, error) {
	return nil, errNoCdev
}

// RequestCdevOutputs always fails off Linux.
func RequestCdevOutputs(chip string, a, b int) (OutputPins, error) {
	return nil, errNoCdev
}
