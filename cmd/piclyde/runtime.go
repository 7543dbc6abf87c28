package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"piclyde/internal/config"
	"piclyde/internal/gpio"
	"piclyde/internal/stepper"
	"piclyde/internal/web"
)

var openDriverFn = gpio.Open

// runtime owns the line driver, the controller and the HTTP handler built
// from one configuration.
type runtime struct {
	cfg      config.Config
	ctl      *stepper.Controller
	registry *prometheus.Registry
	handler  http.Handler
}

func stepperConfig(cfg config.Config, logger *zerolog.Logger) stepper.Config {
	sc := stepper.Config{
		EnableActiveLow: cfg.GPIO.EnableActiveLow == nil || *cfg.GPIO.EnableActiveLow,
		Logger:          logger,
	}
	for _, a := range cfg.Actuators {
		step, dir, en := a.Pins()
		sc.Actuators = append(sc.Actuators, stepper.ActuatorConfig{
			Pins:    stepper.Pins{Step: step, Direction: dir, Enable: en},
			Speed:   a.Speed,
			Reverse: a.Reverse,
		})
	}
	return sc
}

// newRuntime claims every configured line. A line that cannot be claimed
// is returned as an error wrapping gpio.ErrLineUnavailable.
func newRuntime(cfg config.Config, logger zerolog.Logger, logs *web.LogBuffer) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	sc := stepperConfig(c, &logger)
	drv, err := openDriverFn(gpio.Config{
		Backend:  c.GPIO.Backend,
		Chip:     c.GPIO.Chip,
		Consumer: c.GPIO.Consumer,
	}, sc.Pins())
	if err != nil {
		return nil, fmt.Errorf("gpio init failed: %w", err)
	}

	ctl, err := stepper.New(drv, sc)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("stepper init failed: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stepper.InitMetrics(reg)

	r := &runtime{cfg: c, ctl: ctl, registry: reg}
	if *c.Web.Enable {
		r.handler = web.Handler(ctl, web.Options{
			CORSOrigins: c.Web.CORSOrigins,
			Logs:        logs,
			Gatherer:    reg,
			Logger:      &logger,
		})
	}

	logger.Info().
		Str("backend", c.GPIO.Backend).
		Int("actuators", ctl.Len()).
		Bool("enable_active_low", sc.EnableActiveLow).
		Msg("actuators ready")
	return r, nil
}

// Close stops every actuator and releases the lines.
func (r *runtime) Close() {
	if r == nil || r.ctl == nil {
		return
	}
	r.ctl.Shutdown()
}
