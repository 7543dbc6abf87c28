package stepper

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PulsesTotal counts completed step duty cycles.
	PulsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piclyde",
			Subsystem: "stepper",
			Name:      "pulses_total",
			Help:      "Total count of step pulses emitted.",
		}, []string{"actuator"})

	// BurstsTotal counts completed bursts.
	BurstsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piclyde",
			Subsystem: "stepper",
			Name:      "bursts_total",
			Help:      "Total count of completed run bursts.",
		}, []string{"actuator"})

	// RunningGauge is 1 while a pulse worker is active.
	RunningGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "piclyde",
			Subsystem: "stepper",
			Name:      "running",
			Help:      "Whether the actuator has an active pulse worker.",
		}, []string{"actuator"})

	// SpeedGauge mirrors the configured speed.
	SpeedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "piclyde",
			Subsystem: "stepper",
			Name:      "speed",
			Help:      "Configured speed (pulses-per-second scale factor).",
		}, []string{"actuator"})
)

// InitMetrics registers the stepper collectors.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(PulsesTotal)
	registry.MustRegister(BurstsTotal)
	registry.MustRegister(RunningGauge)
	registry.MustRegister(SpeedGauge)
}

type actuatorMetrics struct {
	pulses  prometheus.Counter
	bursts  prometheus.Counter
	running prometheus.Gauge
	speed   prometheus.Gauge
}

func newActuatorMetrics(index int) *actuatorMetrics {
	label := strconv.Itoa(index)
	return &actuatorMetrics{
		pulses:  PulsesTotal.WithLabelValues(label),
		bursts:  BurstsTotal.WithLabelValues(label),
		running: RunningGauge.WithLabelValues(label),
		speed:   SpeedGauge.WithLabelValues(label),
	}
}
