// Package metrics defines the prometheus metric families shared across
// the bandwidth, credential and tunnel subsystems (spec §2 row Q).
// Grounded on grimm-is-flywall/internal/metrics/collector.go's use of
// github.com/prometheus/client_golang for its own gauge/counter set,
// generalized to this domain's ticket/bandwidth/tunnel-state signals.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every metric this module registers. Pass a *Metrics
// (or nil, in tests) into each subsystem constructor.
type Metrics struct {
	TicketSpentTotal        *prometheus.CounterVec
	BandwidthRemainingBytes *prometheus.GaugeVec
	TunnelStateTransitions  *prometheus.CounterVec
	ZkNymRequestDuration    prometheus.Histogram
}

// New registers and returns the full metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicketSpentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nymvpn",
			Name:      "ticket_spent_total",
			Help:      "Bandwidth tickets spent, by ticket type.",
		}, []string{"ticket_type"}),
		BandwidthRemainingBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nymvpn",
			Name:      "bandwidth_remaining_bytes",
			Help:      "Last observed remaining bandwidth for a gateway direction.",
		}, []string{"gateway_id", "direction"}),
		TunnelStateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nymvpn",
			Name:      "tunnel_state_transitions_total",
			Help:      "Tunnel state machine transitions, by destination state.",
		}, []string{"state"}),
		ZkNymRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nymvpn",
			Name:      "zk_nym_request_duration_seconds",
			Help:      "Duration of request_zk_nym_ticketbook calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.TicketSpentTotal, m.BandwidthRemainingBytes, m.TunnelStateTransitions, m.ZkNymRequestDuration)
	return m
}
