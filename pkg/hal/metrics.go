//go:build !tinygo

package hal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resetLineConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ota_agent",
		Name:      "reset_line_configured",
		Help:      "Whether a hardware reset line for the MCU is available",
	})
	resetPulseCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Name:      "reset_pulse_count",
		Help:      "Number of hardware reset pulses sent to the MCU",
	})
)
