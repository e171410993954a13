package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/directory"
	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/handlers"
	"github.com/darbyjahn/smallphot0-backend/internal/ingest"
	"github.com/darbyjahn/smallphot0-backend/internal/journal"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/memory"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
	"github.com/darbyjahn/smallphot0-backend/internal/middleware"
	"github.com/darbyjahn/smallphot0-backend/internal/startup"
	"github.com/darbyjahn/smallphot0-backend/internal/thumbnail"
	"github.com/darbyjahn/smallphot0-backend/internal/transcoder"
)

const (
	shutdownTimeout   = 30 * time.Second
	limiterPruneEvery = 10 * time.Minute
	journalRetention  = 30 * 24 * time.Hour
)

// transcodeStack is everything that exists only while transcoding is enabled.
type transcodeStack struct {
	journal *journal.Journal
	encoder *transcoder.FFmpegEncoder
	worker  *transcoder.Worker
}

func main() {
	startTime := time.Now()

	if err := startup.LoadDotEnv(); err != nil {
		startup.LogFatal("Environment error: %v", err)
	}
	memory.ApplyLimit()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	store := mediastore.New(config.DataDir)
	repo := catalog.NewRepository(store)
	galleries := directory.New(repo, config.GalleryTemplate)

	entries, err := galleries.List()
	if err != nil {
		startup.LogFatal("Failed to read gallery directory: %v", err)
	}
	startup.LogLibraryInit(len(entries))

	opts := []ingest.Option{ingest.WithMaxVideos(config.MaxVideosPerUpload)}

	var tc *transcodeStack
	if startup.LogTranscoderInit(config.TranscodingEnabled, config.FFmpegPath, config.TranscodeWorkers, config.TranscodeTimeout) {
		tc, err = startTranscoder(config, store, repo)
		if err != nil {
			startup.LogFatal("Failed to start transcoder: %v", err)
		}
		opts = append(opts, ingest.WithTranscoder(tc.worker))
	}

	startup.LogThumbnailInit(config.ThumbnailsEnabled)
	guard := memory.NewGuard(memory.DefaultGuardConfig())
	if config.ThumbnailsEnabled {
		guard.Start()
		opts = append(opts, ingest.WithThumbnails(thumbnail.New()), ingest.WithMemoryGuard(guard))
	}

	pipeline := ingest.New(galleries, repo, opts...)

	h := handlers.New(galleries, repo, pipeline, config)
	if tc != nil {
		h.SetTranscoder(tc.journal, tc.worker)
		h.SetEncoder(tc.encoder)
	}
	if config.ThumbnailsEnabled {
		h.SetMemoryGuard(guard)
	}

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	collector := metrics.NewCollector(galleries, time.Minute)
	collector.Start()

	stopPrune := make(chan struct{})
	go pruneLimiter(h, stopPrune)

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(h, config.MetricsPort)
	}

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads and video range requests can run long.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, collector, guard, stopPrune, tc)
		close(done)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

// startTranscoder opens the job journal, fails jobs a previous process left
// unfinished, drops finished jobs older than journalRetention and starts the
// worker pool.
func startTranscoder(config *startup.Config, store *mediastore.Store, repo *catalog.Repository) (*transcodeStack, error) {
	start := time.Now()
	ctx := context.Background()

	j, err := journal.Open(ctx, store.JournalPath())
	if err != nil {
		return nil, err
	}

	recovered, err := transcoder.Recover(ctx, j, store, repo)
	if err != nil {
		logging.Warn("Transcode recovery incomplete: %v", err)
	}
	if pruned, err := j.Prune(ctx, time.Now().Add(-journalRetention)); err != nil {
		logging.Warn("Transcode journal prune failed: %v", err)
	} else if pruned > 0 {
		logging.Debug("Pruned %d finished transcode jobs", pruned)
	}
	startup.LogJournalInit(j.Path(), recovered, time.Since(start))

	enc := transcoder.NewFFmpegEncoder(config.FFmpegPath)
	w := transcoder.NewWorker(enc, store, repo, j, transcoder.Config{
		Workers: config.TranscodeWorkers,
		Timeout: config.TranscodeTimeout,
	})
	w.Start()

	return &transcodeStack{journal: j, encoder: enc, worker: w}, nil
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	h.RegisterRoutes(r)

	// Upload form and shared gallery assets
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(config.StaticDir)))

	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	return r
}

func startMetricsServer(h *handlers.Handlers, port string) *http.Server {
	mr := http.NewServeMux()
	mr.Handle("/metrics", h.MetricsHandler())
	mr.HandleFunc("/health", h.HealthCheck)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mr,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

func pruneLimiter(h *handlers.Handlers, stop <-chan struct{}) {
	ticker := time.NewTicker(limiterPruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := h.PruneLimiter(limiterPruneEvery); n > 0 {
				logging.Debug("Pruned %d idle PIN limiters", n)
			}
		case <-stop:
			return
		}
	}
}

func handleShutdown(srv, metricsSrv *http.Server, collector *metrics.Collector, guard *memory.Guard, stopPrune chan struct{}, tc *transcodeStack) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping background monitors")
	collector.Stop()
	guard.Stop()
	close(stopPrune)
	startup.LogShutdownStepComplete("Background monitors stopped")

	if tc != nil {
		startup.LogShutdownStep("Stopping transcoder")
		if err := tc.worker.Stop(ctx); err != nil {
			logging.Warn("Transcoder stop: %v", err)
		}
		tc.encoder.Cleanup()
		if err := tc.journal.Close(); err != nil {
			logging.Warn("Journal close error: %v", err)
		}
		startup.LogShutdownStepComplete("Transcoder stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
