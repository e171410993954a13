// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadDotEnv] reads an optional .env file, then [LoadConfig] reads the
// environment:
//
//   - DATA_DIR: galleries, catalogs, media and the transcode journal (default: /data)
//   - STATIC_DIR: site assets served at / (default: ./public)
//   - GALLERY_TEMPLATE: page copied into each new gallery (default: $STATIC_DIR/gallery.html)
//   - PORT: HTTP server port (default: 3000)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: enable the metrics server (default: true)
//   - MAX_VIDEOS_PER_UPLOAD: video cap per upload batch (default: 3)
//   - MAX_UPLOAD_MB: request body limit for uploads (default: 512)
//   - TRANSCODE_ENABLED: convert videos for web playback (default: true)
//   - TRANSCODE_WORKERS: concurrent ffmpeg processes (default: half the CPUs)
//   - TRANSCODE_TIMEOUT: per-video time limit, 0 for none (default: 0)
//   - FFMPEG_PATH: ffmpeg binary (default: ffmpeg)
//   - THUMBNAILS_ENABLED: render image previews (default: true)
//   - PIN_ATTEMPTS_PER_MINUTE: unlock attempts per gallery (default: 10)
//   - LOG_LEVEL, LOG_FORMAT, LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//
// GOMEMLIMIT, or MEMORY_LIMIT scaled by MEMORY_RATIO, sets the Go memory limit
// before configuration is read; see the memory package.
//
// The data directory is required and must be writable.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
