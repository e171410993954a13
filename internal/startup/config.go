package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/workers"
)

// Config holds all application configuration
type Config struct {
	DataDir         string
	StaticDir       string
	GalleryTemplate string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	MaxVideosPerUpload int
	MaxUploadBytes     int64

	TranscodingEnabled bool
	TranscodeWorkers   int
	TranscodeTimeout   time.Duration
	FFmpegPath         string

	ThumbnailsEnabled    bool
	PINAttemptsPerMinute int
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named. Missing files are ignored and existing variables are never
// overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
		logging.Debug("Loaded environment from %s", f)
	}
	return nil
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logSection("CONFIGURATION")

	cfg := readConfig()

	logging.Info("  DATA_DIR:                %s", cfg.DataDir)
	logging.Info("  STATIC_DIR:              %s", cfg.StaticDir)
	logging.Info("  GALLERY_TEMPLATE:        %s", cfg.GalleryTemplate)
	logging.Info("  PORT:                    %s", cfg.Port)
	logging.Info("  METRICS_PORT:            %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:         %v", cfg.MetricsEnabled)
	logging.Info("  MAX_VIDEOS_PER_UPLOAD:   %d", cfg.MaxVideosPerUpload)
	logging.Info("  MAX_UPLOAD_MB:           %d", cfg.MaxUploadBytes>>20)
	logging.Info("  TRANSCODE_ENABLED:       %v", cfg.TranscodingEnabled)
	logging.Info("  TRANSCODE_WORKERS:       %d", cfg.TranscodeWorkers)
	logging.Info("  TRANSCODE_TIMEOUT:       %s", durationString(cfg.TranscodeTimeout))
	logging.Info("  FFMPEG_PATH:             %s", cfg.FFmpegPath)
	logging.Info("  THUMBNAILS_ENABLED:      %v", cfg.ThumbnailsEnabled)
	logging.Info("  PIN_ATTEMPTS_PER_MINUTE: %d", cfg.PINAttemptsPerMinute)
	logging.Info("  LOG_STATIC_FILES:        %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:       %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:               %s", logging.GetLevel())

	logging.Info("")
	logSection("DIRECTORY SETUP")

	var err error
	if cfg.DataDir, err = filepath.Abs(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute): %s", cfg.DataDir)

	if cfg.StaticDir, err = filepath.Abs(cfg.StaticDir); err != nil {
		return nil, fmt.Errorf("failed to resolve static directory path: %w", err)
	}
	logging.Info("  Static directory (absolute): %s", cfg.StaticDir)

	if err := ensureDirectory(cfg.DataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}

	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	if err := ensureDirectory(cfg.StaticDir, "static"); err != nil {
		logging.Warn("  Static directory issue: %v", err)
	}
	if _, err := os.Stat(cfg.GalleryTemplate); err != nil {
		logging.Warn("  Gallery template not found, new galleries will have no page: %v", err)
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Transcoding: %s", enabledString(cfg.TranscodingEnabled))
	logging.Info("    Thumbnails:  %s", enabledString(cfg.ThumbnailsEnabled))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

// readConfig reads the environment without touching the filesystem.
func readConfig() *Config {
	staticDir := getEnv("STATIC_DIR", "./public")

	return &Config{
		DataDir:         getEnv("DATA_DIR", "/data"),
		StaticDir:       staticDir,
		GalleryTemplate: getEnv("GALLERY_TEMPLATE", filepath.Join(staticDir, "gallery.html")),
		Port:            getEnv("PORT", "3000"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:  getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),

		MaxVideosPerUpload: getEnvInt("MAX_VIDEOS_PER_UPLOAD", 3),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 512)) << 20,

		TranscodingEnabled: getEnvBool("TRANSCODE_ENABLED", true),
		// ffmpeg's x264 encoder is multi-threaded, so half the CPUs is enough
		// to keep the machine busy. TRANSCODE_WORKERS overrides this.
		TranscodeWorkers: workers.Count(0.5, 0),
		TranscodeTimeout: getEnvDuration("TRANSCODE_TIMEOUT", 0),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),

		ThumbnailsEnabled:    getEnvBool("THUMBNAILS_ENABLED", true),
		PINAttemptsPerMinute: getEnvInt("PIN_ATTEMPTS_PER_MINUTE", 10),
	}
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %s", key, value, durationString(defaultValue))
		return defaultValue
	}
	return parsed
}

func durationString(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}
