package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSold     = "sold"
	OutcomeParked   = "parked"
	OutcomeLostRace = "lost_race"
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// RechargeMetrics counts allocation and reminder outcomes.
type RechargeMetrics struct {
	sales     *prometheus.CounterVec
	claims    *prometheus.CounterVec
	reminders *prometheus.CounterVec
}

// NewRechargeMetrics registers the allocation and reminder counters.
func NewRechargeMetrics(reg prometheus.Registerer) *RechargeMetrics {
	if reg == nil {
		return &RechargeMetrics{}
	}
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recharge_sales_total",
		Help: "Sell attempts by outcome.",
	}, []string{"outcome"})
	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recharge_code_claims_total",
		Help: "Compare-and-set claims on recharge codes by outcome.",
	}, []string{"outcome"})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recharge_reminders_total",
		Help: "Expiry reminders by milestone and outcome.",
	}, []string{"milestone", "outcome"})
	reg.MustRegister(sales, claims, reminders)
	return &RechargeMetrics{sales: sales, claims: claims, reminders: reminders}
}

func (m *RechargeMetrics) IncSale(outcome string) {
	if m == nil || m.sales == nil {
		return
	}
	m.sales.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *RechargeMetrics) IncClaim(outcome string) {
	if m == nil || m.claims == nil {
		return
	}
	m.claims.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *RechargeMetrics) IncReminder(milestone, outcome string) {
	if m == nil || m.reminders == nil {
		return
	}
	m.reminders.WithLabelValues(normalizeLabel(milestone), normalizeLabel(outcome)).Inc()
}
