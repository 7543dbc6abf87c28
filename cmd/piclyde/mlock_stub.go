//go:build !linux

package main

import "fmt"

func lockMemory() error {
	return fmt.Errorf("mlockall unsupported on this platform")
}
