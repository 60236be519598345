package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "exchange",
		Name:      "frames_sent_count",
		Help:      "Frames transmitted to the MCU by command",
	}, []string{"command"})
	decodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "exchange",
		Name:      "decode_errors_count",
		Help:      "Responses that failed framing, length or checksum validation",
	}, []string{"command"})
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "exchange",
		Name:      "retry_attempts_count",
		Help:      "Attempts made by retried operations",
	}, []string{"operation"})
	retryExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "exchange",
		Name:      "retry_exhausted_count",
		Help:      "Retried operations that ran out of attempts",
	}, []string{"operation"})
)
