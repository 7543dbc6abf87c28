//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// cdevDriver drives lines through the Linux GPIO character device.
type cdevDriver struct {
	mu     sync.RWMutex
	chips  map[string]*gpiocdev.Chip
	lines  map[int]*gpiocdev.Line
	closed bool
}

// chipCandidates lists accessible gpiochip devices. Pi 5 kernels can expose
// the header GPIOs on gpiochip0 or gpiochip4, so both go first.
func chipCandidates() []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(p string) {
		if seen[p] {
			return
		}
		seen[p] = true
		if unix.Access(p, unix.R_OK|unix.W_OK) != nil {
			return
		}
		out = append(out, p)
	}
	add("/dev/gpiochip0")
	add("/dev/gpiochip4")
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			add(filepath.Join("/dev", e.Name()))
		}
	}
	return out
}

func openCDev(cfg Config, pins []int) (Driver, error) {
	d := &cdevDriver{
		chips: map[string]*gpiocdev.Chip{},
		lines: make(map[int]*gpiocdev.Line, len(pins)),
	}

	var candidates []string
	if cfg.Chip != "" {
		candidates = []string{cfg.Chip}
	} else {
		candidates = chipCandidates()
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no accessible gpiochip device", ErrLineUnavailable)
	}

	for _, pin := range pins {
		line, err := d.request(cfg, candidates, pin)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.lines[pin] = line
	}
	return d, nil
}

func (d *cdevDriver) chip(path string) (*gpiocdev.Chip, error) {
	if c, ok := d.chips[path]; ok {
		return c, nil
	}
	c, err := gpiocdev.NewChip(path)
	if err != nil {
		return nil, err
	}
	d.chips[path] = c
	return c, nil
}

func (d *cdevDriver) request(cfg Config, candidates []string, pin int) (*gpiocdev.Line, error) {
	lineName := fmt.Sprintf("GPIO%d", pin)
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer(cfg.Consumer)}

	if cfg.Chip != "" {
		c, err := d.chip(cfg.Chip)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLineUnavailable, cfg.Chip, err)
		}
		offset, err := c.FindLine(lineName)
		if err != nil {
			offset = pin
		}
		line, err := c.RequestLine(offset, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: pin %d on %s: %v", ErrLineUnavailable, pin, cfg.Chip, err)
		}
		return line, nil
	}

	for _, path := range candidates {
		c, err := d.chip(path)
		if err != nil {
			continue
		}
		offset, err := c.FindLine(lineName)
		if err != nil {
			continue
		}
		line, err := c.RequestLine(offset, opts...)
		if err != nil {
			continue
		}
		return line, nil
	}
	return nil, fmt.Errorf("%w: line %q not found (or busy)", ErrLineUnavailable, lineName)
}

func (d *cdevDriver) line(pin int) (*gpiocdev.Line, error) {
	if d.closed {
		return nil, ErrClosed
	}
	l, ok := d.lines[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	return l, nil
}

func (d *cdevDriver) Set(pin int, high bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, err := d.line(pin)
	if err != nil {
		return err
	}
	return l.SetValue(level(high))
}

func (d *cdevDriver) Get(pin int) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, err := d.line(pin)
	if err != nil {
		return false, err
	}
	v, err := l.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Close releases every line and chip. Line levels are left as last written.
func (d *cdevDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var first error
	for pin, l := range d.lines {
		if err := l.Close(); err != nil && first == nil {
			first = fmt.Errorf("gpio: release pin %d: %w", pin, err)
		}
	}
	d.lines = nil
	for _, c := range d.chips {
		_ = c.Close()
	}
	d.chips = nil
	return first
}
