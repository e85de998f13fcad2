package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics exposes Prometheus collectors for reward engine activity.
// All methods tolerate a nil receiver so callers never guard.
type EngineMetrics struct {
	entries      *prometheus.CounterVec
	retries      prometheus.Counter
	serials      *prometheus.CounterVec
	stepups      *prometheus.CounterVec
	infinity     *prometheus.CounterVec
	commissions  *prometheus.CounterVec
	ripples      prometheus.Counter
	vouchers     prometheus.Counter
	cascadeDepth prometheus.Histogram
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised metrics registry used to record
// ledger and reward activity.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			entries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "ledger",
				Name:      "entries_total",
				Help:      "Ledger record calls segmented by entry kind and outcome.",
			}, []string{"kind", "outcome"}),
			retries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "ledger",
				Name:      "transaction_retries_total",
				Help:      "Cascade transactions retried after transient storage conflicts.",
			}),
			serials: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "serials_assigned_total",
				Help:      "Global serial numbers assigned, segmented by region.",
			}, []string{"region"}),
			stepups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "stepup_rewards_total",
				Help:      "StepUp milestone rewards fired, segmented by multiplier.",
			}, []string{"multiplier"}),
			infinity: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "infinity_cycles_total",
				Help:      "Infinity cycle rewards issued, segmented by cycle number.",
			}, []string{"cycle"}),
			commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "referral_commissions_total",
				Help:      "Referral commissions credited, segmented by referrer role.",
			}, []string{"role"}),
			ripples: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "ripple_rewards_total",
				Help:      "Ripple bonuses credited to referrers.",
			}),
			vouchers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "shopping_vouchers_total",
				Help:      "Shopping vouchers distributed to merchants.",
			}),
			cascadeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "rewardsd",
				Subsystem: "engine",
				Name:      "cascade_depth",
				Help:      "Depth reached by reward cascades within one transaction.",
				Buckets:   prometheus.LinearBuckets(0, 1, 16),
			}),
		}
		prometheus.MustRegister(
			engineRegistry.entries,
			engineRegistry.retries,
			engineRegistry.serials,
			engineRegistry.stepups,
			engineRegistry.infinity,
			engineRegistry.commissions,
			engineRegistry.ripples,
			engineRegistry.vouchers,
			engineRegistry.cascadeDepth,
		)
	})
	return engineRegistry
}

// RecordEntry counts one Record call outcome. Outcomes are stable strings:
// "applied", "replayed", "error".
func (m *EngineMetrics) RecordEntry(kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.entries.WithLabelValues(kind, outcome).Inc()
}

// RecordRetry counts one transaction retry.
func (m *EngineMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// SerialAssigned counts one serial-number assignment.
func (m *EngineMetrics) SerialAssigned(region string) {
	if m == nil {
		return
	}
	if region == "" {
		region = "none"
	}
	m.serials.WithLabelValues(region).Inc()
}

// StepUpAwarded counts one milestone reward.
func (m *EngineMetrics) StepUpAwarded(multiplier uint64) {
	if m == nil {
		return
	}
	m.stepups.WithLabelValues(strconv.FormatUint(multiplier, 10)).Inc()
}

// InfinityAwarded counts one cycle reward.
func (m *EngineMetrics) InfinityAwarded(cycle uint32) {
	if m == nil {
		return
	}
	m.infinity.WithLabelValues(strconv.FormatUint(uint64(cycle), 10)).Inc()
}

// CommissionAwarded counts one referral commission.
func (m *EngineMetrics) CommissionAwarded(role string) {
	if m == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	m.commissions.WithLabelValues(role).Inc()
}

// RippleAwarded counts one ripple bonus.
func (m *EngineMetrics) RippleAwarded() {
	if m == nil {
		return
	}
	m.ripples.Inc()
}

// VoucherDistributed counts one merchant voucher.
func (m *EngineMetrics) VoucherDistributed() {
	if m == nil {
		return
	}
	m.vouchers.Inc()
}

// ObserveCascadeDepth records the generation depth reached by a cascade.
func (m *EngineMetrics) ObserveCascadeDepth(depth int) {
	if m == nil {
		return
	}
	m.cascadeDepth.Observe(float64(depth))
}
