// Package metrics exposes the hub's prometheus instruments. They mirror
// the wire-visible stats so operators can scrape what clients see via
// the status operation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the server registers.
type Metrics struct {
	MessagesTotal     prometheus.Counter
	ConnectionsTotal  prometheus.Counter
	ConnectedClients  prometheus.Gauge
	DroppedDeliveries prometheus.Counter
	AIRequests        *prometheus.CounterVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatserver_messages_total",
			Help: "Chat messages broadcast to the room.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatserver_connections_total",
			Help: "Connections accepted since process start.",
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatserver_connected_clients",
			Help: "Currently connected clients.",
		}),
		DroppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatserver_dropped_deliveries_total",
			Help: "Broadcast frames dropped because a client queue was full or closed.",
		}),
		AIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatserver_ai_requests_total",
			Help: "AI gateway queries by outcome.",
		}, []string{"outcome"}),
	}
}
