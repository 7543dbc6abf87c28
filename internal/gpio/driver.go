// Package gpio drives digital output lines identified by BCM GPIO number.
//
// A Driver is opened once at startup with the full set of pins it owns. Every
// pin is claimed as an output and driven low; a pin that cannot be claimed
// fails Open, which callers treat as fatal.
package gpio

import (
	"errors"
	"fmt"
	"strings"
)

const (
	BackendGPIOCDev = "gpiocdev"
	BackendSim      = "sim"
)

var (
	// ErrLineUnavailable reports a line that could not be claimed or
	// configured as an output.
	ErrLineUnavailable = errors.New("gpio: line unavailable")
	// ErrUnknownPin reports an operation on a pin the driver does not own.
	ErrUnknownPin = errors.New("gpio: unknown pin")
	// ErrClosed reports an operation after Close.
	ErrClosed = errors.New("gpio: driver closed")
)

// Driver sets and reads digital output lines.
// Implementations are safe for concurrent use on distinct pins.
type Driver interface {
	Set(pin int, high bool) error
	Get(pin int) (bool, error)
	Close() error
}

type Config struct {
	// Backend is BackendGPIOCDev or BackendSim.
	Backend string
	// Chip optionally pins every line to one character device
	// (e.g. /dev/gpiochip0) using the BCM number as the line offset.
	// Empty means resolve "GPIO<n>" line names across all chips.
	Chip string
	// Consumer is the label shown by gpioinfo for claimed lines.
	Consumer string
}

var openCDevFn = openCDev

// Open claims pins as outputs driven low.
func Open(cfg Config, pins []int) (Driver, error) {
	if err := checkPins(pins); err != nil {
		return nil, err
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "piclyde"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendGPIOCDev:
		return openCDevFn(cfg, pins)
	case BackendSim:
		return NewSim(pins), nil
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", cfg.Backend)
	}
}

func checkPins(pins []int) error {
	seen := make(map[int]struct{}, len(pins))
	for _, p := range pins {
		if p < 0 {
			return fmt.Errorf("%w: invalid pin %d", ErrLineUnavailable, p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: pin %d claimed twice", ErrLineUnavailable, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
