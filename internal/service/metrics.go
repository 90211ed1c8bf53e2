package service

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/strogmv/fanout/internal/pkg/circuitbreaker"
)

// Dispatch outcomes.
const (
	outcomeDelivered  = "delivered"
	outcomeFailed     = "failed"
	outcomeUnresolved = "unresolved"
	outcomeInvalid    = "invalid"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_dispatch_total",
		Help: "Broadcast dispatches by event and outcome.",
	}, []string{"event", "outcome"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fanout_publish_duration_seconds",
		Help:    "Latency of the transport publish call.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"event"})

	channelsPerEvent = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fanout_channels_per_event",
		Help:    "Number of channels a single event fans out to.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	}, []string{"event"})

	criticalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_critical_failures_total",
		Help: "Critical broadcasts whose live publish failed.",
	}, []string{"event"})

	offlineRecipients = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_offline_critical_recipients_total",
		Help: "Notified users with no live connection when a critical event was published.",
	}, []string{"event"})

	replayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_dead_letter_replay_total",
		Help: "Dead-letter replay attempts by outcome.",
	}, []string{"outcome"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_transport_breaker_state",
		Help: "Transport circuit breaker state (0 closed, 1 open, 2 half-open).",
	})
)

// ObserveBreaker is a circuitbreaker.OnStateChange hook that exports the state.
func ObserveBreaker(from, to circuitbreaker.State) {
	breakerState.Set(float64(to))
	slog.Warn("transport breaker changed state", "from", from.String(), "to", to.String())
}
