// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "search_stage_duration_seconds",
			Help: "Duration of each pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	StageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_stage_fallbacks_total",
			Help: "Total number of stage-level fallbacks by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	StreamChunksWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_stream_chunks_written_total",
			Help: "Total number of NDJSON chunks flushed to clients",
		},
		[]string{"mode"},
	)

	StreamDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_stream_disconnects_total",
			Help: "Total number of streams abandoned by the client before completion",
		},
		[]string{"mode"},
	)

	NormalizeCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalize_cache_lookups_total",
			Help: "Normalization cache lookups by result",
		},
		[]string{"result"},
	)

	RetrievalRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_retrieval_rows",
			Help:    "Number of rows returned by the combined retrieval call",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"mode"},
	)
)
