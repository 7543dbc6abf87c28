package stepper

import (
	"time"

	"github.com/rs/zerolog"
)

// Burst and rest are fixed regardless of speed.
const (
	burstDuration = 500 * time.Millisecond
	restDuration  = 500 * time.Millisecond
)

var (
	nowFn   = time.Now
	sleepFn = time.Sleep
	afterFn = time.After
)

// worker is the handle of one pulse goroutine. stop is closed by the
// controller; done is closed by the goroutine when it returns.
type worker struct {
	stop chan struct{}
	done chan struct{}
}

func newWorker() *worker {
	return &worker{stop: make(chan struct{}), done: make(chan struct{})}
}

// dutyCycle returns the step high and low hold times for speed.
// high = 1/(2*speed) s, low = 1/(5*speed) s, so the line is high 5/7 of a
// cycle at every speed.
func dutyCycle(speed uint32) (high, low time.Duration) {
	if speed < MinSpeed {
		speed = MinSpeed
	}
	s := time.Duration(speed)
	return time.Second / (2 * s), time.Second / (5 * s)
}

// run alternates bursts and rests until the actuator is disabled.
func (c *Controller) run(a *actuator, w *worker) {
	defer close(w.done)

	log := c.log.With().Int("actuator", a.index).Logger()
	log.Debug().Msg("pulse worker started")
	defer log.Debug().Msg("pulse worker stopped")

	for {
		ok, err := c.burst(a, w, log)
		if err != nil {
			log.Error().Err(err).Msg("pulse worker aborted")
			// Best effort: leave the step line low.
			_ = c.drv.Set(a.pins.Step, false)
			return
		}
		if !ok {
			return
		}
		select {
		case <-w.stop:
			return
		case <-afterFn(restDuration):
		}
	}
}

// burst runs duty cycles for burstDuration. The cycle in progress when the
// deadline passes completes. It reports false once the actuator is disabled.
func (c *Controller) burst(a *actuator, w *worker, log zerolog.Logger) (bool, error) {
	deadline := nowFn().Add(burstDuration)
	for nowFn().Before(deadline) {
		ok, err := c.enabled(a, w)
		if err != nil || !ok {
			return false, err
		}
		high, low := dutyCycle(a.speed.Load())
		if err := c.drv.Set(a.pins.Step, true); err != nil {
			return false, err
		}
		sleepFn(high)
		if err := c.drv.Set(a.pins.Step, false); err != nil {
			return false, err
		}
		sleepFn(low)
		a.metrics.pulses.Inc()
	}
	a.metrics.bursts.Inc()
	log.Trace().Uint32("speed", a.speed.Load()).Msg("burst complete")
	return true, nil
}

// enabled reports whether the worker should keep stepping: the stop signal
// is still open and the enable line is at its active level.
func (c *Controller) enabled(a *actuator, w *worker) (bool, error) {
	select {
	case <-w.stop:
		return false, nil
	default:
	}
	v, err := c.drv.Get(a.pins.Enable)
	if err != nil {
		return false, err
	}
	return v == c.enableLevel(true), nil
}
