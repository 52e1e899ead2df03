package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnsAccepted      prometheus.Counter
	HandlersInFlight   prometheus.Gauge
	MessagesDispatched *prometheus.CounterVec // by type
	HandlerErrors      *prometheus.CounterVec // by type
	MessagesUnhandled  prometheus.Counter
	OutboundSends      *prometheus.CounterVec // by result
	PeersPruned        prometheus.Counter
	Peers              prometheus.Gauge
}

const (
	sendOK        = "ok"
	sendDialError = "dial_error"
	sendError     = "send_error"
	sendRecvError = "receive_error"
)

// NewMetrics registers the node's collectors on reg.
// Registering twice on one registerer panics, as with any promauto collector.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ConnsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conns_accepted_total",
			Help:      "Inbound connections accepted.",
		}),
		HandlersInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handlers_in_flight",
			Help:      "Inbound connections currently being served.",
		}),
		MessagesDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Inbound messages handed to a registered handler.",
		}, []string{"type"}),
		HandlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handlers that returned an error or panicked.",
		}, []string{"type"}),
		MessagesUnhandled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_unhandled_total",
			Help:      "Inbound messages whose type has no handler.",
		}),
		OutboundSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sends_total",
			Help:      "Outbound exchanges by result.",
		}, []string{"result"}),
		PeersPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_pruned_total",
			Help:      "Peers removed after failing a liveness probe.",
		}),
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Peers in the identity table.",
		}),
	}
}
