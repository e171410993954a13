// Package memory keeps the server inside a container memory budget.
//
// ApplyLimit derives GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO when the
// runtime limit is not set directly. A Guard samples heap usage and reports
// Throttled above a high-water mark; the ingest pipeline then stores images
// without rendering thumbnails, and the thumbnail route serves the original.
//
// Video transcoding runs in ffmpeg child processes and is not affected by
// the guard. The share of the container left outside GOMEMLIMIT is for
// those processes.
package memory
