package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoyaltyMetrics counts point movements and redemption outcomes.
type LoyaltyMetrics struct {
	pointsAwarded *prometheus.CounterVec
	redemptions   *prometheus.CounterVec
	outbox        *prometheus.CounterVec
}

// NewLoyaltyMetrics registers the loyalty counters on the provided registerer.
func NewLoyaltyMetrics(reg prometheus.Registerer) *LoyaltyMetrics {
	if reg == nil {
		return &LoyaltyMetrics{}
	}
	pointsAwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_points_awarded_total",
		Help: "Points credited to customers, by transaction type.",
	}, []string{"type"})
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_redemptions_total",
		Help: "Redemption attempts, by outcome code.",
	}, []string{"outcome"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_outbox_events_total",
		Help: "Outbox rows handled by the event relay, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(pointsAwarded, redemptions, outbox)
	return &LoyaltyMetrics{
		pointsAwarded: pointsAwarded,
		redemptions:   redemptions,
		outbox:        outbox,
	}
}

// AddPoints adds points credited under the given transaction type.
func (m *LoyaltyMetrics) AddPoints(txType string, points int) {
	if m == nil || m.pointsAwarded == nil || points <= 0 {
		return
	}
	m.pointsAwarded.WithLabelValues(normalizeLabel(txType)).Add(float64(points))
}

// IncRedemption records one redemption attempt. outcome is "success" or an error code.
func (m *LoyaltyMetrics) IncRedemption(outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncOutbox records one relayed outbox row: published, retry or dead_lettered.
func (m *LoyaltyMetrics) IncOutbox(outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(outcome)).Inc()
}
