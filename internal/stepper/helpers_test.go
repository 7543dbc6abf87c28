package stepper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"piclyde/internal/gpio"
)

var testPins = []Pins{
	{Step: 27, Direction: 21, Enable: 4},
	{Step: 26, Direction: 23, Enable: 13},
	{Step: 12, Direction: 20, Enable: 22},
}

func newTestController(t *testing.T, activeLow bool) (*Controller, *gpio.Sim) {
	t.Helper()
	cfg := Config{EnableActiveLow: activeLow}
	for _, p := range testPins {
		cfg.Actuators = append(cfg.Actuators, ActuatorConfig{Pins: p})
	}
	sim := gpio.NewSim(cfg.Pins())
	sim.Now = func() time.Time { return nowFn() }
	c, err := New(sim, cfg)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c, sim
}

// fakeClock advances only when the worker sleeps or rests, so line
// timestamps are exact.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.Sleep(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

// useFakeClock must be called before newTestController so the controller
// shuts down before the real clock is restored.
func useFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	oldNow, oldSleep, oldAfter := nowFn, sleepFn, afterFn
	nowFn, sleepFn, afterFn = clk.Now, clk.Sleep, clk.After
	t.Cleanup(func() {
		nowFn, sleepFn, afterFn = oldNow, oldSleep, oldAfter
	})
	return clk
}

// pulseTrace is the step line activity reconstructed from recorded writes.
type pulseTrace struct {
	highs []time.Duration
	// gaps[i] is the low time between highs[i] ending and highs[i+1] starting.
	gaps []time.Duration
}

func tracePulses(history []gpio.Transition) pulseTrace {
	var tr pulseTrace
	var highAt, lowAt time.Time
	inHigh, sawLow := false, false
	for _, h := range history {
		switch {
		case h.High && !inHigh:
			if sawLow {
				tr.gaps = append(tr.gaps, h.At.Sub(lowAt))
			}
			highAt, inHigh = h.At, true
		case !h.High && inHigh:
			tr.highs = append(tr.highs, h.At.Sub(highAt))
			lowAt, inHigh, sawLow = h.At, false, true
		}
	}
	return tr
}

// deassertAfter drives the enable line inactive from the worker's own
// goroutine once the step line has gone high n times.
func deassertAfter(sim *gpio.Sim, p Pins, activeLow bool, n int, each func(high int)) {
	var mu sync.Mutex
	highs := 0
	sim.OnSet = func(pin int, high bool) {
		if pin != p.Step || !high {
			return
		}
		mu.Lock()
		highs++
		cur := highs
		mu.Unlock()
		if each != nil {
			each(cur)
		}
		if cur == n {
			_ = sim.Set(p.Enable, activeLow)
		}
	}
}

func enableActive(activeLow bool) bool { return !activeLow }

// waitWorker blocks until the worker of actuator i returns on its own.
func waitWorker(t *testing.T, c *Controller, i int) {
	t.Helper()
	a := c.actuators[i]
	a.mu.Lock()
	w := a.w
	a.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		require.FailNowf(t, "worker did not exit", "actuator %d", i)
	}
}
