package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smallphotos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smallphotos_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Ingest metrics
var (
	IngestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_ingest_files_total",
			Help: "Total number of uploaded files by media kind and outcome",
		},
		[]string{"kind", "status"},
	)

	IngestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_ingest_batches_total",
			Help: "Total number of upload batches by outcome",
		},
		[]string{"status"}, // "complete", "partial", "failed", "rejected"
	)

	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smallphotos_ingest_batch_duration_seconds",
			Help:    "Time to move and record an upload batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	IngestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smallphotos_ingest_bytes_total",
			Help: "Total bytes written into media stores",
		},
	)
)

// Catalog metrics
var (
	CatalogOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_catalog_operations_total",
			Help: "Total number of catalog loads and saves",
		},
		[]string{"operation", "status"},
	)

	CatalogOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smallphotos_catalog_operation_duration_seconds",
			Help:    "Catalog load/save duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	CatalogLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smallphotos_catalog_lock_wait_seconds",
			Help:    "Time spent waiting for a per-gallery catalog lock",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	CatalogCorruptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smallphotos_catalog_corrupt_total",
			Help: "Number of unparsable catalog documents encountered",
		},
	)

	GalleriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smallphotos_galleries_total",
			Help: "Number of galleries in the directory",
		},
	)

	MediaItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smallphotos_media_items_total",
			Help: "Number of catalog items across all galleries by kind",
		},
		[]string{"kind"},
	)

	MediaItemsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smallphotos_media_items_by_status",
			Help: "Number of video items by transcode status",
		},
		[]string{"status"},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_transcoder_jobs_total",
			Help: "Total number of transcoding jobs by outcome",
		},
		[]string{"status"}, // "done", "failed", "orphaned", "interrupted"
	)

	TranscoderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smallphotos_transcoder_job_duration_seconds",
			Help:    "Transcoding job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smallphotos_transcoder_jobs_in_progress",
			Help: "Number of transcoding jobs currently running",
		},
	)

	TranscoderQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smallphotos_transcoder_queue_depth",
			Help: "Number of transcoding jobs waiting for a worker",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smallphotos_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smallphotos_memory_usage_ratio",
			Help: "Sampled heap size as a fraction of the memory limit",
		},
	)

	MemoryThrottled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smallphotos_memory_throttled",
			Help: "1 while thumbnails are skipped because of memory pressure",
		},
	)
)

// Access metrics
var (
	PINAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_pin_attempts_total",
			Help: "Gallery unlock attempts by outcome",
		},
		[]string{"status"}, // "ok", "denied", "limited"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smallphotos_filesystem_operation_duration_seconds",
			Help:    "Duration of data directory filesystem operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_filesystem_operation_errors_total",
			Help: "Failed data directory filesystem operations",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen on the data directory",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_filesystem_retry_attempts_total",
			Help: "Retries issued after a stale file handle error",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smallphotos_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smallphotos_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
