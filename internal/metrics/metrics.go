package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postroom_submissions_total",
			Help: "Total number of newsletter submissions by result.",
		},
		[]string{"result"}, // accepted, duplicate, rejected, error
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postroom_deliveries_total",
			Help: "Total number of delivery attempts by status.",
		},
		[]string{"status"}, // delivered, failed, invalid_recipient
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postroom_delivery_latency_seconds",
			Help:    "Latency of outbound mail sends.",
			Buckets: prometheus.DefBuckets,
		},
	)

	FanoutSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postroom_fanout_size",
			Help:    "Number of delivery tasks enqueued per accepted issue.",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "postroom_queue_depth",
			Help: "Delivery tasks currently waiting in the queue.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(SubmissionsTotal, DeliveriesTotal, DeliveryLatency, FanoutSize, QueueDepth)
}

// RecordSubmission increments the submission counter for the given result
func RecordSubmission(result string) {
	SubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordDelivery increments the delivery counter and observes latency when non-zero
func RecordDelivery(status string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	if latency > 0 {
		DeliveryLatency.Observe(latency.Seconds())
	}
}

// RecordFanout observes the number of tasks enqueued for one issue
func RecordFanout(n int) {
	FanoutSize.Observe(float64(n))
}

// UpdateQueueDepth sets the queue depth gauge
func UpdateQueueDepth(depth float64) {
	QueueDepth.Set(depth)
}
