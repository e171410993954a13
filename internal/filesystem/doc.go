/*
Package filesystem provides the durable file primitives used under DATA_DIR.

# Retry

Reads of catalog documents and stats of media files go through
StatWithRetry, OpenWithRetry and ReadFileWithRetry. These retry only on
ESTALE (stale NFS file handle) with exponential backoff; any other error is
returned immediately.

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())

# Atomic writes

WriteFileAtomic and WriteReaderAtomic write to a temporary file in the target
directory, fsync it and rename it over the destination. MoveFile renames when
possible and falls back to an atomic copy across devices, which is what
happens when the multipart temp directory and DATA_DIR are different mounts.

# Metrics

The package does not import metrics. Install an Observer with SetObserver at
startup; with none installed, recording is skipped.
*/
package filesystem
