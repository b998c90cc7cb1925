//go:build linux

package actuator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultLEDPin is the BCM line driving the status LED.
const DefaultLEDPin = 12

// GPIOLed drives an LED through the Linux GPIO character device.
type GPIOLed struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewGPIOLed requests the given line as an output, initially off.
func NewGPIOLed(pin int) (*GPIOLed, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}

	return &GPIOLed{chip: chip, line: line}, nil
}

// Set switches the LED.
func (g *GPIOLed) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := g.line.SetValue(v); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// Close turns the LED off and releases GPIO resources.
func (g *GPIOLed) Close() error {
	var errs []error

	if g.line != nil {
		if err := g.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear led: %w", err))
		}
		if err := g.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led pin: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
