package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels appends and correlation passes that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels appends and correlation passes that failed.
	OutcomeError = "error"
)

var (
	historyAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trend_engine",
			Name:      "history_appends_total",
			Help:      "Total number of history append attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	historyAppendSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trend_engine",
			Name:      "history_append_seconds",
			Help:      "History append latency in seconds, rotation included.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	historyRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trend_engine",
			Name:      "history_rotations_total",
			Help:      "Total number of retention rotations of the history file.",
		},
	)

	historyParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trend_engine",
			Name:      "history_parse_errors_total",
			Help:      "Total number of history lines skipped as corrupt or unreadable.",
		},
	)

	historyReadsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trend_engine",
			Name:      "history_reads_skipped_total",
			Help:      "Total number of reads skipped because the store was busy.",
		},
	)

	correlationPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trend_engine",
			Name:      "correlation_passes_total",
			Help:      "Total number of correlation passes, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	ruleFiringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trend_engine",
			Name:      "rule_firings_total",
			Help:      "Total number of correlated issues emitted, partitioned by rule.",
		},
		[]string{"rule"},
	)
)

// Register attaches trend-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		historyAppendsTotal,
		historyAppendSeconds,
		historyRotationsTotal,
		historyParseErrorsTotal,
		historyReadsSkippedTotal,
		correlationPassesTotal,
		ruleFiringsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAppend records an append duration and outcome label.
func ObserveAppend(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	historyAppendsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	historyAppendSeconds.Observe(duration.Seconds())
}

// IncRotation counts one retention rotation.
func IncRotation() {
	historyRotationsTotal.Inc()
}

// IncParseError counts one skipped history line.
func IncParseError() {
	historyParseErrorsTotal.Inc()
}

// IncReadSkipped counts one read that yielded no data because the store
// was busy.
func IncReadSkipped() {
	historyReadsSkippedTotal.Inc()
}

// ObserveCorrelationPass records the outcome of one correlation pass.
func ObserveCorrelationPass(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	correlationPassesTotal.WithLabelValues(label).Inc()
}

// IncRuleFiring counts one emitted issue for the given rule.
func IncRuleFiring(rule string) {
	ruleFiringsTotal.WithLabelValues(rule).Inc()
}
