package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exchangeCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "transport",
		Name:      "exchange_count",
		Help:      "Number of completed fixed length exchanges",
	}, []string{"kind"})
	exchangeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "transport",
		Name:      "exchange_errors_count",
		Help:      "Number of failed exchanges",
	}, []string{"kind"})
)
