package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WarmupCollector exposes Prometheus metrics for the warmup engine.
type WarmupCollector struct {
	sweepDuration   prometheus.Histogram
	actionsTotal    *prometheus.CounterVec
	accountsByPhase *prometheus.GaugeVec
	shadowbanChecks *prometheus.CounterVec
	sweepErrors     prometheus.Counter
}

// NewWarmupCollector constructs and registers the warmup metric set.
func NewWarmupCollector(registry *prometheus.Registry) (*WarmupCollector, error) {
	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "karmaloop",
		Subsystem: "warmup",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of full orchestrator sweep passes.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	actionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karmaloop",
		Subsystem: "warmup",
		Name:      "actions_total",
		Help:      "Warmup actions attempted, by kind and outcome.",
	}, []string{"kind", "outcome"})

	accountsByPhase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "karmaloop",
		Subsystem: "warmup",
		Name:      "accounts_by_phase",
		Help:      "Current number of accounts in each warmup phase.",
	}, []string{"phase"})

	shadowbanChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "karmaloop",
		Subsystem: "risk",
		Name:      "shadowban_checks_total",
		Help:      "Shadowban heuristic runs, by outcome.",
	}, []string{"outcome"})

	sweepErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "karmaloop",
		Subsystem: "warmup",
		Name:      "sweep_account_errors_total",
		Help:      "Per-account errors isolated during sweeps.",
	})

	for _, c := range []prometheus.Collector{sweepDuration, actionsTotal, accountsByPhase, shadowbanChecks, sweepErrors} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &WarmupCollector{
		sweepDuration:   sweepDuration,
		actionsTotal:    actionsTotal,
		accountsByPhase: accountsByPhase,
		shadowbanChecks: shadowbanChecks,
		sweepErrors:     sweepErrors,
	}, nil
}

// ObserveSweep records the duration of one sweep pass.
func (c *WarmupCollector) ObserveSweep(d time.Duration) {
	if c == nil {
		return
	}
	c.sweepDuration.Observe(d.Seconds())
}

// RecordAction counts one attempted action.
func (c *WarmupCollector) RecordAction(kind, outcome string) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetPhaseCount updates the per-phase fleet gauge.
func (c *WarmupCollector) SetPhaseCount(phase string, count int) {
	if c == nil {
		return
	}
	c.accountsByPhase.WithLabelValues(phase).Set(float64(count))
}

// RecordShadowbanCheck counts one heuristic run.
func (c *WarmupCollector) RecordShadowbanCheck(outcome string) {
	if c == nil {
		return
	}
	c.shadowbanChecks.WithLabelValues(outcome).Inc()
}

// RecordSweepError counts one isolated per-account sweep error.
func (c *WarmupCollector) RecordSweepError() {
	if c == nil {
		return
	}
	c.sweepErrors.Inc()
}
