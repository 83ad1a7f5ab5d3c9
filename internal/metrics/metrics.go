package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors used by the chat server.
type Registry struct {
	reg *prometheus.Registry

	ClientsActive prometheus.Gauge
	RoomsActive   prometheus.Gauge

	Commands          *prometheus.CounterVec
	JobsEnqueued      prometheus.Counter
	Deliveries        prometheus.Counter
	DeliveriesDropped prometheus.Counter
	ClientsEvicted    prometheus.Counter
}

// NewRegistry creates Prometheus metrics collectors on a private registry,
// so multiple server instances (tests) never collide on registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ClientsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqchat_clients_active",
			Help: "Number of clients currently registered",
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqchat_rooms_active",
			Help: "Number of rooms currently in the registry, including the default channel",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mqchat_commands_total",
			Help: "Total commands consumed from the control queue, by kind",
		}, []string{"kind"}),
		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqchat_jobs_enqueued_total",
			Help: "Total delivery jobs enqueued for the worker pool",
		}),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqchat_deliveries_total",
			Help: "Total messages delivered to client reply queues",
		}),
		DeliveriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqchat_deliveries_dropped_total",
			Help: "Total messages dropped because a reply queue was full",
		}),
		ClientsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqchat_clients_evicted_total",
			Help: "Total clients evicted by the inactivity monitor",
		}),
	}
}

// Handler returns an HTTP handler exposing this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
