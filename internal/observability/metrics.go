// Package observability exposes the ledger's Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

var (
	recordsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "chain",
		Name:      "records_appended_total",
		Help:      "Activity records committed, labeled by event type class.",
	}, []string{"kind"})

	appendConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "chain",
		Name:      "append_conflicts_total",
		Help:      "Appends rejected because another writer moved the chain head.",
	})

	verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "verify",
		Name:      "runs_total",
		Help:      "Chain verifications, labeled by outcome.",
	}, []string{"outcome"})

	verificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "verify",
		Name:      "failures_total",
		Help:      "Integrity findings reported by verification, labeled by kind.",
	}, []string{"kind"})

	verifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "supplytrace",
		Subsystem: "verify",
		Name:      "duration_seconds",
		Help:      "Time spent reading and replaying a chain.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Committed status transitions.",
	}, []string{"from", "to"})

	rejectedTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "lifecycle",
		Name:      "rejected_transitions_total",
		Help:      "Transitions refused by the state machine.",
	}, []string{"from", "to"})

	lastAppendGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "supplytrace",
		Subsystem: "chain",
		Name:      "last_record_timestamp_seconds",
		Help:      "Unix timestamp of the most recently committed activity record.",
	})
)

func init() {
	prometheus.MustRegister(
		recordsAppended,
		appendConflicts,
		verifications,
		verificationFailures,
		verifyDuration,
		transitions,
		rejectedTransitions,
		lastAppendGauge,
	)
}

// RecordAppended counts a committed record.
func RecordAppended(rec *domain.ActivityRecord) {
	kind := "custom"
	switch {
	case rec.IsGenesis():
		kind = "genesis"
	case rec.EventType.IsLifecycle():
		kind = "lifecycle"
	}
	recordsAppended.WithLabelValues(kind).Inc()
	lastAppendGauge.Set(float64(rec.Timestamp.Unix()))
}

// RecordAppendConflict counts a lost optimistic-concurrency race.
func RecordAppendConflict() {
	appendConflicts.Inc()
}

// RecordTransition counts a committed status change.
func RecordTransition(from, to domain.ProductStatus) {
	transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordRejectedTransition counts a transition the state machine refused.
func RecordRejectedTransition(from, to domain.ProductStatus) {
	rejectedTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordVerification counts a verification and each of its findings.
func RecordVerification(result domain.VerificationResult, elapsed time.Duration) {
	outcome := "valid"
	if !result.Valid {
		outcome = "invalid"
	}
	verifications.WithLabelValues(outcome).Inc()
	for _, f := range result.Failures {
		verificationFailures.WithLabelValues(string(f.Kind)).Inc()
	}
	verifyDuration.Observe(elapsed.Seconds())
}
