// Package stepper runs open-loop step/direction/enable stepper actuators.
//
// Each running actuator owns one pulse goroutine that toggles its step line
// in 0.5 s bursts separated by 0.5 s rests. The Controller is the only
// writer of enable and direction lines; a worker writes only its step line.
// Stop interrupts a rest, so it usually returns within one duty cycle.
package stepper

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"piclyde/internal/gpio"
)

type Config struct {
	Actuators []ActuatorConfig
	// EnableActiveLow matches A4988/DRV8825 style boards where a low
	// enable line powers the driver stage.
	EnableActiveLow bool
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Controller owns every actuator and the line driver behind them.
// Lifecycle calls on the same actuator are serialized; calls on different
// actuators never block each other.
type Controller struct {
	drv       gpio.Driver
	log       zerolog.Logger
	activeLow bool
	actuators []*actuator

	closed       atomic.Bool
	shutdownOnce sync.Once
}

// Pins returns every line referenced by cfg, in actuator order.
func (cfg Config) Pins() []int {
	out := make([]int, 0, 3*len(cfg.Actuators))
	for _, a := range cfg.Actuators {
		out = append(out, a.Step, a.Direction, a.Enable)
	}
	return out
}

// New builds a controller over drv and drives every actuator to a safe
// state: enable inactive, step low, direction latched.
func New(drv gpio.Driver, cfg Config) (*Controller, error) {
	if drv == nil {
		return nil, fmt.Errorf("stepper: driver is nil")
	}
	if len(cfg.Actuators) == 0 {
		return nil, fmt.Errorf("stepper: no actuators configured")
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "stepper").Logger()
	}
	c := &Controller{
		drv:       drv,
		log:       log,
		activeLow: cfg.EnableActiveLow,
	}
	for i, ac := range cfg.Actuators {
		a, err := newActuator(i, ac)
		if err != nil {
			return nil, err
		}
		if err := drv.Set(a.pins.Enable, c.enableLevel(false)); err != nil {
			return nil, fmt.Errorf("stepper: actuator %d enable: %w", i, err)
		}
		if err := drv.Set(a.pins.Step, false); err != nil {
			return nil, fmt.Errorf("stepper: actuator %d step: %w", i, err)
		}
		if err := drv.Set(a.pins.Direction, a.forward.Load()); err != nil {
			return nil, fmt.Errorf("stepper: actuator %d direction: %w", i, err)
		}
		a.metrics.speed.Set(float64(a.speed.Load()))
		a.metrics.running.Set(0)
		c.actuators = append(c.actuators, a)
	}
	return c, nil
}

func (c *Controller) enableLevel(active bool) bool {
	if c.activeLow {
		return !active
	}
	return active
}

func (c *Controller) actuator(i int) (*actuator, error) {
	if i < 0 || i >= len(c.actuators) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidIndex, i, len(c.actuators))
	}
	return c.actuators[i], nil
}

// Len returns the number of actuators.
func (c *Controller) Len() int { return len(c.actuators) }

// Start enables actuator i and launches its pulse worker. Starting a running
// actuator is a no-op; a worker that already returned is replaced.
func (c *Controller) Start(i int) error {
	a, err := c.actuator(i)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if c.closed.Load() {
		return ErrShutdown
	}
	if a.w != nil {
		select {
		case <-a.w.done:
			// The worker ended on its own (enable dropped or line error).
			c.reap(a)
		default:
			return nil
		}
	}

	if err := c.drv.Set(a.pins.Enable, c.enableLevel(true)); err != nil {
		return fmt.Errorf("stepper: actuator %d enable: %w", i, err)
	}
	forward := a.forward.Load()
	if err := c.drv.Set(a.pins.Direction, forward); err != nil {
		_ = c.drv.Set(a.pins.Enable, c.enableLevel(false))
		return fmt.Errorf("stepper: actuator %d direction: %w", i, err)
	}

	w := newWorker()
	a.w = w
	a.running.Store(true)
	a.metrics.running.Set(1)
	go c.run(a, w)

	c.log.Info().Int("actuator", i).Uint32("speed", a.speed.Load()).Bool("forward", forward).Msg("actuator started")
	return nil
}

// Stop disables actuator i and blocks until its worker has returned. The
// wait is bounded by one duty cycle. Stopping an idle actuator is a no-op.
func (c *Controller) Stop(i int) error {
	a, err := c.actuator(i)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.w
	if w == nil {
		return nil
	}

	// Line errors must not leave a worker behind: signal and join regardless.
	if err := c.drv.Set(a.pins.Enable, c.enableLevel(false)); err != nil {
		c.log.Warn().Err(err).Int("actuator", i).Msg("disable enable line failed")
	}
	close(w.stop)
	<-w.done
	c.reap(a)

	c.log.Info().Int("actuator", i).Msg("actuator stopped")
	return nil
}

// reap clears the handle of a worker that has returned and leaves the step
// line low. a.mu must be held.
func (c *Controller) reap(a *actuator) {
	if err := c.drv.Set(a.pins.Step, false); err != nil {
		c.log.Warn().Err(err).Int("actuator", a.index).Msg("step line reset failed")
	}
	a.w = nil
	a.running.Store(false)
	a.metrics.running.Set(0)
}

// StopAll stops every actuator concurrently and returns once all workers
// have terminated.
func (c *Controller) StopAll() {
	var g errgroup.Group
	for i := range c.actuators {
		i := i
		g.Go(func() error {
			return c.Stop(i)
		})
	}
	_ = g.Wait()
}

// SetSpeed sets the speed of actuator i. A running worker picks it up at
// its next duty cycle.
func (c *Controller) SetSpeed(i, v int) error {
	a, err := c.actuator(i)
	if err != nil {
		return err
	}
	if err := checkSpeed(v); err != nil {
		return err
	}
	a.speed.Store(uint32(v))
	a.metrics.speed.Set(float64(v))
	c.log.Debug().Int("actuator", i).Int("speed", v).Msg("speed set")
	return nil
}

// ToggleDirection flips the direction of actuator i and returns the new
// value. A running actuator has its direction line rewritten immediately.
func (c *Controller) ToggleDirection(i int) (forward bool, err error) {
	a, err := c.actuator(i)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	forward = !a.forward.Toggle()
	if a.w != nil {
		if err := c.drv.Set(a.pins.Direction, forward); err != nil {
			return forward, fmt.Errorf("stepper: actuator %d direction: %w", i, err)
		}
	}
	c.log.Info().Int("actuator", i).Bool("forward", forward).Msg("direction toggled")
	return forward, nil
}

// Actuator returns the observed state of actuator i.
func (c *Controller) Actuator(i int) (Snapshot, error) {
	a, err := c.actuator(i)
	if err != nil {
		return Snapshot{}, err
	}
	return a.snapshot(), nil
}

// Snapshot returns the observed state of every actuator.
func (c *Controller) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(c.actuators))
	for _, a := range c.actuators {
		out = append(out, a.snapshot())
	}
	return out
}

// Shutdown stops every actuator and releases the line driver. Further
// Start calls fail with ErrShutdown. Safe to call more than once.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.closed.Store(true)
		c.StopAll()
		if err := c.drv.Close(); err != nil {
			c.log.Warn().Err(err).Msg("release lines failed")
		}
		c.log.Info().Msg("controller shut down")
	})
}
