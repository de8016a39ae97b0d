package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Retrieval runs by result: success, no_messages, no_code, auth_required, auth_expired, api_error.
	RetrievalCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grabotp_retrieval_total",
			Help: "Total number of OTP retrieval runs",
		},
		[]string{"result"},
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grabotp_retrieval_duration_seconds",
			Help:    "OTP retrieval run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// Mail API calls by operation (search, fetch) and HTTP status.
	APICallCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grabotp_mail_api_calls_total",
			Help: "Total number of mail API calls",
		},
		[]string{"operation", "status"},
	)

	// Deliveries by path: bridge, clipboard, none.
	DeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grabotp_delivery_total",
			Help: "Total number of code deliveries by path",
		},
		[]string{"path", "status"},
	)

	FillResultCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grabotp_fill_result_total",
			Help: "Fill results reported by page agents",
		},
		[]string{"filled"},
	)
)

// RecordRetrieval counts a finished retrieval run and its duration.
func RecordRetrieval(result string, duration time.Duration) {
	RetrievalCount.WithLabelValues(result).Inc()
	RetrievalDuration.Observe(duration.Seconds())
}

// RecordAPICall counts one mail API call.
func RecordAPICall(operation, status string) {
	APICallCount.WithLabelValues(operation, status).Inc()
}

// RecordDelivery counts a delivery attempt.
func RecordDelivery(path, status string) {
	DeliveryCount.WithLabelValues(path, status).Inc()
}

// RecordFillResult counts a fill-result message from a page agent.
func RecordFillResult(filled bool) {
	label := "false"
	if filled {
		label = "true"
	}
	FillResultCount.WithLabelValues(label).Inc()
}
