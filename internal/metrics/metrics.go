// Package metrics holds the prometheus collectors for ingestion and streaming.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	ManifestsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_manifests_ingested_total",
		Help: "Total number of manifests ingested successfully",
	})

	ManifestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_manifests_failed_total",
		Help: "Total number of manifests skipped because of an error",
	}, []string{"reason"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_ingest_duration_seconds",
		Help:    "Time taken to ingest a whole archive tree",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// Streaming
	StreamBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_stream_bytes_total",
		Help: "Total bytes read from archive blobs for streaming",
	})

	StreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_stream_errors_total",
		Help: "Total number of streams terminated by a read error",
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archive_active_streams",
		Help: "Number of blob streams holding an open file",
	})
)
