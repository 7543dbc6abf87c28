//go:build !linux

package gpio

import "fmt"

// Stub implementation for non-Linux platforms; use the sim backend there.
func openCDev(cfg Config, pins []int) (Driver, error) {
	return nil, fmt.Errorf("%w: gpiocdev unsupported on this platform", ErrLineUnavailable)
}
