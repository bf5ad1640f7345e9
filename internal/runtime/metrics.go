package runtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the engine's Prometheus counters. Each engine owns its
// registry so repeated constructions (tests, reloads) never collide on the
// default registerer.
type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	QueueProcessed prometheus.Counter
	QueueFailed    prometheus.Counter
	EventsEmitted  *prometheus.CounterVec
	SessionPushes  *prometheus.CounterVec
}

func newMetrics(service string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pathcall",
			Name:        "requests_total",
			Help:        "Routed requests by response status.",
			ConstLabels: labels,
		}, []string{"status"}),
		QueueProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pathcall",
			Name:        "queue_messages_processed_total",
			Help:        "Queue messages consumed and acknowledged.",
			ConstLabels: labels,
		}),
		QueueFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pathcall",
			Name:        "queue_messages_failed_total",
			Help:        "Queue messages dropped after a consumer failure.",
			ConstLabels: labels,
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pathcall",
			Name:        "events_emitted_total",
			Help:        "Event deliveries by scope (local invocation or remote publish).",
			ConstLabels: labels,
		}, []string{"scope"}),
		SessionPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pathcall",
			Name:        "session_pushes_total",
			Help:        "Push deliveries by outcome (delivered, forwarded, dropped).",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Requests, m.QueueProcessed, m.QueueFailed, m.EventsEmitted, m.SessionPushes)
	return m
}

// Handler serves the engine's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
