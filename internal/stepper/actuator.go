package stepper

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

const (
	MinSpeed     = 1
	MaxSpeed     = 255
	DefaultSpeed = 100
)

var (
	ErrOutOfRange   = errors.New("stepper: speed out of range")
	ErrInvalidIndex = errors.New("stepper: invalid actuator index")
	ErrShutdown     = errors.New("stepper: controller shut down")
)

// Pins are the BCM line numbers wired to one driver board.
type Pins struct {
	Step      int
	Direction int
	Enable    int
}

// ActuatorConfig is fixed for the life of the process.
type ActuatorConfig struct {
	Pins
	// Speed is the initial speed; 0 means DefaultSpeed.
	Speed int
	// Reverse starts the actuator with the direction line low.
	Reverse bool
}

// Snapshot is the externally visible state of one actuator.
type Snapshot struct {
	Index        int  `json:"index"`
	StepPin      int  `json:"step_pin"`
	DirectionPin int  `json:"direction_pin"`
	EnablePin    int  `json:"enable_pin"`
	Speed        int  `json:"speed"`
	Forward      bool `json:"forward"`
	Running      bool `json:"running"`
}

// actuator holds the mutable state of one motor.
//
// mu serializes lifecycle changes (start, stop, direction latch). speed,
// forward and running are atomics so snapshots and speed updates never wait
// behind a Stop that is joining its worker.
//
// Invariant: running is true iff w != nil, both changed only under mu.
type actuator struct {
	index int
	pins  Pins

	mu sync.Mutex
	w  *worker

	speed   atomic.Uint32
	forward atomic.Bool
	running atomic.Bool

	metrics *actuatorMetrics
}

func newActuator(index int, cfg ActuatorConfig) (*actuator, error) {
	speed := cfg.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}
	if err := checkSpeed(speed); err != nil {
		return nil, fmt.Errorf("actuator %d: %w", index, err)
	}
	a := &actuator{index: index, pins: cfg.Pins, metrics: newActuatorMetrics(index)}
	a.speed.Store(uint32(speed))
	a.forward.Store(!cfg.Reverse)
	return a, nil
}

func checkSpeed(v int) error {
	if v < MinSpeed || v > MaxSpeed {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrOutOfRange, v, MinSpeed, MaxSpeed)
	}
	return nil
}

func (a *actuator) snapshot() Snapshot {
	return Snapshot{
		Index:        a.index,
		StepPin:      a.pins.Step,
		DirectionPin: a.pins.Direction,
		EnablePin:    a.pins.Enable,
		Speed:        int(a.speed.Load()),
		Forward:      a.forward.Load(),
		Running:      a.running.Load(),
	}
}
