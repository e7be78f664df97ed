package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of failed outbox delivery attempts.",
	})

	exhaustedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "supplytrace",
		Subsystem: "outbox",
		Name:      "events_exhausted_total",
		Help:      "Number of outbox events moved to failed after their last retry.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "supplytrace",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, exhaustedCounter, batchDuration)
}
