package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipflow_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipflow_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipflow_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_pipeline_runs_total",
			Help: "Total number of processing pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	PipelineRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipflow_pipeline_runs_active",
			Help: "Number of pipeline runs currently executing",
		},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipflow_pipeline_run_duration_seconds",
			Help:    "Wall-clock duration of a full pipeline run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// Transcoder metrics
var (
	TranscodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_transcode_jobs_total",
			Help: "Total number of variant encode jobs by label and status",
		},
		[]string{"variant", "status"},
	)

	TranscodeJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipflow_transcode_job_duration_seconds",
			Help:    "Duration of individual variant encode jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"variant"},
	)
)

// Streaming metrics
var (
	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_stream_requests_total",
			Help: "Total number of stream requests by quality and response class",
		},
		[]string{"quality", "kind"},
	)

	ChunkCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipflow_chunk_cache_hits_total",
			Help: "Chunk cache hits",
		},
	)

	ChunkCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipflow_chunk_cache_misses_total",
			Help: "Chunk cache misses",
		},
	)

	ChunkCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipflow_chunk_cache_evictions_total",
			Help: "Chunk cache entries evicted by TTL expiry",
		},
	)

	ChunkCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipflow_chunk_cache_entries",
			Help: "Number of entries currently held in the chunk cache",
		},
	)
)

// Websocket metrics
var (
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipflow_ws_connections_active",
			Help: "Number of active websocket connections",
		},
	)

	WSEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_ws_events_published_total",
			Help: "Total number of events published to websocket rooms",
		},
		[]string{"event"},
	)
)

// Auth metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)
)
