package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TransfersTotal  *prometheus.CounterVec
	BridgeFailures  prometheus.Counter
	QueueDepth      *prometheus.GaugeVec
	AssignWaitTime  prometheus.Histogram
	ActiveSessions  prometheus.Gauge
	WSClients       prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	DrainCycles     prometheus.Counter
	DrainDuration   prometheus.Histogram
	CallsIngested   *prometheus.CounterVec
}

func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer requests by routing outcome.",
		}, []string{"outcome"}),
		BridgeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_failures_total",
			Help:      "Failed attempts to bridge a call to an agent endpoint.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Calls currently waiting, by team.",
		}, []string{"team"}),
		AssignWaitTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assign_wait_seconds",
			Help:      "Time from enqueue to agent assignment in seconds.",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300, 600},
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_agent_sessions",
			Help:      "Live calls currently handled by agents.",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard WebSocket clients.",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Broadcast events by topic.",
		}, []string{"topic"}),
		DrainCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_cycles_total",
			Help:      "Queue drain passes executed.",
		}),
		DrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Duration of a queue drain pass in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		CallsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ingested_total",
			Help:      "Lifecycle events ingested from the voice pipeline by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveDrain(d time.Duration) {
	m.DrainCycles.Inc()
	m.DrainDuration.Observe(d.Seconds())
}

// Handler serves the metrics in Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
