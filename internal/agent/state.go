package agent

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uptime-industries/ota-agent/pkg/checkpoint"
	"github.com/uptime-industries/ota-agent/pkg/eventbus"
)

const statusTopic = "status"

var (
	stageMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ota_agent",
		Name:      "stage",
		Help:      "Update session stage (label values are success, in_progress, failed)",
	}, []string{"stage"})

	progressMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ota_agent",
		Name:      "progress_percent",
		Help:      "Progress of the current update session in percent",
	})

	sessionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Name:      "sessions_count",
		Help:      "Update sessions by kind and outcome",
	}, []string{"kind", "outcome"})
)

// Status is the externally visible progress of the current or last session.
type Status struct {
	Stage    checkpoint.Stage `json:"stage"`
	Progress int              `json:"progress"`
	// Phase names the step the session is in, e.g. soc_install or app_transfer.
	Phase string `json:"phase,omitempty"`
	Error string `json:"error,omitempty"`
}

// statusTracker holds the status snapshot and fans changes out to subscribers.
type statusTracker struct {
	mu     sync.Mutex
	status Status
	bus    eventbus.EventBus[Status]
}

func newStatusTracker() *statusTracker {
	return &statusTracker{
		bus: eventbus.New[Status](),
	}
}

func (s *statusTracker) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Set replaces the status. It returns false if nothing changed.
func (s *statusTracker) Set(status Status) bool {
	return s.Update(func(st *Status) { *st = status })
}

// Update applies fn to the current status and publishes the result if it
// changed. Publishing happens under the lock so subscribers observe changes
// in order; Publish never blocks.
func (s *statusTracker) Update(fn func(*Status)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	fn(&status)
	if status == s.status {
		return false
	}
	s.status = status

	for _, stage := range []checkpoint.Stage{checkpoint.StageSuccess, checkpoint.StageInProgress, checkpoint.StageFailed} {
		if stage == status.Stage {
			stageMetric.WithLabelValues(stage.String()).Set(1)
		} else {
			stageMetric.WithLabelValues(stage.String()).Set(0)
		}
	}
	progressMetric.Set(float64(status.Progress))

	s.bus.Publish(statusTopic, status)
	return true
}

func (s *statusTracker) Subscribe(bufSize int) eventbus.Subscriber[Status] {
	return s.bus.Subscribe(statusTopic, bufSize, eventbus.MatchAll[Status])
}
