// Package metrics provides Prometheus instrumentation for the gallery server.
//
// All metrics are prefixed with "smallphotos_" and registered with the default
// registry through promauto. The HTTP handler in handlers.MetricsHandler
// exposes them on METRICS_PORT.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: requests by method, normalized path and status
//   - HTTPRequestDuration: request duration by method and path
//   - HTTPRequestsInFlight: requests currently being served
//
// ## Ingest Metrics
//
//   - IngestFilesTotal: uploaded files by kind and outcome
//   - IngestBatchesTotal: upload batches by outcome
//   - IngestBatchDuration, IngestBytesTotal
//
// ## Catalog Metrics
//
//   - CatalogOperationsTotal / CatalogOperationDuration: loads, saves, quarantines
//   - CatalogLockWait: time spent waiting on the per-gallery lock
//   - CatalogCorruptTotal: unparsable gallery.json documents
//   - GalleriesTotal, MediaItemsTotal, MediaItemsByStatus: set by Collector
//
// ## Transcoder Metrics
//
//   - TranscoderJobsTotal, TranscoderJobDuration
//   - TranscoderJobsInProgress, TranscoderQueueDepth
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver.
//
// # Example Queries
//
// Share of upload batches that partially failed:
//
//	rate(smallphotos_ingest_batches_total{status="partial"}[1h]) /
//	sum(rate(smallphotos_ingest_batches_total[1h]))
//
// Transcode p95:
//
//	histogram_quantile(0.95, rate(smallphotos_transcoder_job_duration_seconds_bucket[1h]))
package metrics
