package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound webhook metrics
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_webhook_requests_total",
			Help: "Total number of webhook requests by outcome",
		},
		[]string{"outcome"},
	)

	// Retrieval metrics
	Retrievals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrop_retrievals_total",
			Help: "Total number of file retrievals by final status",
		},
		[]string{"status"},
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filedrop_retrieval_duration_seconds",
			Help:    "Duration of file retrievals in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DownloadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filedrop_downloaded_bytes_total",
			Help: "Total bytes of file content stored",
		},
	)
)
