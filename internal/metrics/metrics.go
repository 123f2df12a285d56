// Package metrics holds the Prometheus instruments for both planes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates every instrument the servers report.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge
	FramesRelayed     *prometheus.CounterVec
	SignalingErrors   *prometheus.CounterVec
	ConnectionsReaped prometheus.Counter
	TokensIssued      prometheus.Counter
	TokensRevoked     prometheus.Counter
}

// New registers all metrics on reg. Pass a fresh registry in tests to keep
// instances isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "onecall_signaling_connections_active",
			Help: "Currently open signaling connections",
		}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "onecall_signaling_rooms_active",
			Help: "Rooms with at least one admitted peer",
		}),
		FramesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onecall_signaling_frames_relayed_total",
			Help: "Negotiation frames relayed between peers",
		}, []string{"type"}), // offer, answer, ice
		SignalingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onecall_signaling_errors_total",
			Help: "Error frames sent to clients",
		}, []string{"code"}),
		ConnectionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "onecall_signaling_connections_reaped_total",
			Help: "Connections terminated by heartbeat timeout or stalled sends",
		}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "onecall_tokens_issued_total",
			Help: "Grants minted by the access plane",
		}),
		TokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "onecall_tokens_revoked_total",
			Help: "Grants put on the revocation deny-list",
		}),
	}
}
