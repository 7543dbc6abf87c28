package gpio

import (
	"fmt"
	"sync"
	"time"
)

// Transition is one recorded level change on a simulated line.
type Transition struct {
	Pin  int
	High bool
	At   time.Time
}

// Sim is an in-memory Driver. It records every Set (including writes that
// do not change the level) so tests can inspect line activity.
type Sim struct {
	mu      sync.Mutex
	levels  map[int]bool
	history []Transition
	closed  bool

	// Now stamps recorded transitions; defaults to time.Now.
	Now func() time.Time
	// OnSet, when non-nil, is called after every successful Set, outside
	// the driver lock.
	OnSet func(pin int, high bool)
}

func NewSim(pins []int) *Sim {
	s := &Sim{levels: make(map[int]bool, len(pins)), Now: time.Now}
	for _, p := range pins {
		s.levels[p] = false
	}
	return s
}

func (s *Sim) Set(pin int, high bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.levels[pin]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	s.levels[pin] = high
	now := s.Now
	if now == nil {
		now = time.Now
	}
	s.history = append(s.history, Transition{Pin: pin, High: high, At: now()})
	hook := s.OnSet
	s.mu.Unlock()

	if hook != nil {
		hook(pin, high)
	}
	return nil
}

func (s *Sim) Get(pin int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	v, ok := s.levels[pin]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	return v, nil
}

// Close releases the simulated lines. Levels stay readable through Level.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Level returns the last level written to pin, even after Close.
func (s *Sim) Level(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

// History returns a copy of recorded writes for pin.
func (s *Sim) History(pin int) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transition
	for _, t := range s.history {
		if t.Pin == pin {
			out = append(out, t)
		}
	}
	return out
}

// Count returns how many writes drove pin to the given level.
func (s *Sim) Count(pin int, high bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.history {
		if t.Pin == pin && t.High == high {
			n++
		}
	}
	return n
}
