//go:build !linux

package actuator

import "errors"

// DefaultLEDPin is the BCM line driving the status LED.
const DefaultLEDPin = 12

// GPIOLed is not available on non-Linux platforms.
type GPIOLed struct{}

// NewGPIOLed returns an error on non-Linux platforms.
func NewGPIOLed(pin int) (*GPIOLed, error) {
	return nil, errors.New("actuator: gpio not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (g *GPIOLed) Set(on bool) error {
	return errors.New("actuator: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIOLed) Close() error {
	return nil
}
