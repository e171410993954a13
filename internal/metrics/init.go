package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{"read", "write", "stat", "open", "rename"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	for _, kind := range []string{"image", "video", "unknown"} {
		for _, status := range []string{"success", "error_unsupported", "error_storage", "error_catalog"} {
			IngestFilesTotal.WithLabelValues(kind, status)
		}
	}
	for _, status := range []string{"complete", "partial", "failed", "rejected"} {
		IngestBatchesTotal.WithLabelValues(status)
	}

	for _, op := range []string{"load", "save", "quarantine"} {
		CatalogOperationsTotal.WithLabelValues(op, "success")
		CatalogOperationsTotal.WithLabelValues(op, "error")
		CatalogOperationDuration.WithLabelValues(op)
	}

	for _, kind := range []string{"image", "video"} {
		MediaItemsTotal.WithLabelValues(kind)
	}
	for _, status := range []string{"pending", "done", "failed"} {
		MediaItemsByStatus.WithLabelValues(status)
	}

	for _, status := range []string{"done", "failed", "orphaned", "interrupted"} {
		TranscoderJobsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "error", "error_decode", "error_encode", "skipped"} {
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"ok", "denied", "limited"} {
		PINAttemptsTotal.WithLabelValues(status)
	}
}
