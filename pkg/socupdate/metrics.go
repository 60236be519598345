package socupdate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var installCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ota_agent",
	Subsystem: "soc",
	Name:      "install_total",
	Help:      "SOC package installations by kind and result",
}, []string{"kind", "result"})
