package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's instrumentation.
type Metrics struct {
	Connections       prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	EventsReceived    *prometheus.CounterVec
	EventsDelivered   prometheus.Counter
	MessagesBroadcast prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "towhee_gateway_connections",
			Help: "Currently open websocket connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "towhee_gateway_online_users",
			Help: "Distinct users with at least one open connection.",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "towhee_gateway_events_received_total",
			Help: "Inbound gateway events by name.",
		}, []string{"event"}),
		EventsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "towhee_gateway_events_delivered_total",
			Help: "Events enqueued for delivery to sessions.",
		}),
		MessagesBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Name: "towhee_gateway_messages_broadcast_total",
			Help: "Chat messages persisted and broadcast.",
		}),
	}
}
