package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the referral network.
type Metrics struct {
	// Join outcomes: created, duplicate, exhausted, invalid, error
	JoinsTotal *prometheus.CounterVec

	JoinDuration prometheus.Histogram

	// Promotions by the rank name reached
	PromotionsTotal *prometheus.CounterVec

	// Reservation attempts that hit an existing code
	CodeConflicts prometheus.Counter

	// Reserved codes over code space capacity
	CodeUtilization prometheus.Gauge

	// Mirrors overwritten from by-id, by projection
	DriftRepairs *prometheus.CounterVec

	StructuralViolations prometheus.Counter

	// Pending asynchronous aggregation and promotion retries
	RetryQueueDepth prometheus.Gauge

	// Retry outcomes: succeeded, dead_lettered
	RetryOutcomes *prometheus.CounterVec
}

// New registers all network metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JoinsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refnet_joins_total",
			Help: "Join requests by outcome",
		}, []string{"outcome"}),

		JoinDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "refnet_join_duration_seconds",
			Help:    "Duration of a join including ancestor aggregation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		PromotionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refnet_promotions_total",
			Help: "Rank promotions by new rank",
		}, []string{"rank"}),

		CodeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "refnet_code_reservation_conflicts_total",
			Help: "Referral code candidates rejected because they were already reserved",
		}),

		CodeUtilization: factory.NewGauge(prometheus.GaugeOpts{
			Name: "refnet_code_space_utilization_ratio",
			Help: "Reserved referral codes divided by code space capacity",
		}),

		DriftRepairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refnet_projection_drift_repairs_total",
			Help: "Projection entries overwritten from the by-id record",
		}, []string{"projection"}),

		StructuralViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "refnet_structural_integrity_violations_total",
			Help: "Cycles detected while walking the referral graph",
		}),

		RetryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "refnet_retry_queue_depth",
			Help: "Aggregation and promotion tasks waiting for retry",
		}),

		RetryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refnet_retry_outcomes_total",
			Help: "Final outcome of retried aggregation and promotion tasks",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementJoin(outcome string) {
	if m != nil {
		m.JoinsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveJoinDuration(d time.Duration) {
	if m != nil {
		m.JoinDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementPromotion(rank string) {
	if m != nil {
		m.PromotionsTotal.WithLabelValues(rank).Inc()
	}
}

func (m *Metrics) IncrementCodeConflict() {
	if m != nil {
		m.CodeConflicts.Inc()
	}
}

func (m *Metrics) SetCodeUtilization(ratio float64) {
	if m != nil {
		m.CodeUtilization.Set(ratio)
	}
}

func (m *Metrics) IncrementDriftRepair(projection string) {
	if m != nil {
		m.DriftRepairs.WithLabelValues(projection).Inc()
	}
}

func (m *Metrics) IncrementStructuralViolation() {
	if m != nil {
		m.StructuralViolations.Inc()
	}
}

func (m *Metrics) SetRetryQueueDepth(n int) {
	if m != nil {
		m.RetryQueueDepth.Set(float64(n))
	}
}

func (m *Metrics) IncrementRetryOutcome(outcome string) {
	if m != nil {
		m.RetryOutcomes.WithLabelValues(outcome).Inc()
	}
}
