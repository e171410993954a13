package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

var (
	// ErrStopped is returned by Submit after Stop, and recorded on jobs that
	// were still queued when the worker stopped.
	ErrStopped = errors.New("transcode worker stopped")
	// ErrInterrupted is recorded on jobs found unfinished at startup.
	ErrInterrupted = errors.New("transcode interrupted by restart")
)

// Job identifies one video item by its pre-transcode stored name.
type Job struct {
	GalleryID  string
	StoredName string

	journalID int64
}

// Result is the message an encoder goroutine sends to the applier.
type Result struct {
	Job
	OutputName string
	Err        error
	Duration   time.Duration
}

// Applier records a transcode outcome in the gallery catalog. It reports
// false when the item no longer exists.
type Applier interface {
	ApplyTranscode(galleryID, stored, output string, err error) (bool, error)
}

// Recorder persists job state transitions.
type Recorder interface {
	Queue(ctx context.Context, galleryID, storedName string) (int64, error)
	Start(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, outputName string, jobErr error) error
}

// Config controls the worker pool.
type Config struct {
	// Workers is the number of concurrent encodes. Values below 1 mean 1.
	Workers int
	// Timeout bounds one encode. Zero means no limit.
	Timeout time.Duration
	// OnResult, when set, is called by the applier after each outcome is
	// recorded.
	OnResult func(Result)
}

// Worker queues transcode jobs, runs them on a pool of encoder goroutines
// and applies outcomes to catalogs from a single applier goroutine.
type Worker struct {
	encoder  Encoder
	store    *mediastore.Store
	applier  Applier
	recorder Recorder
	config   Config

	mu      sync.Mutex
	queue   []Job
	stopped bool
	started bool
	notify  chan struct{}

	jobs    chan Job
	results chan Result

	ctx    context.Context
	cancel context.CancelFunc

	encoders   sync.WaitGroup
	dispatched chan struct{}
	applied    chan struct{}
}

// NewWorker creates a worker. recorder may be nil.
func NewWorker(encoder Encoder, store *mediastore.Store, applier Applier, recorder Recorder, config Config) *Worker {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		encoder:    encoder,
		store:      store,
		applier:    applier,
		recorder:   recorder,
		config:     config,
		notify:     make(chan struct{}, 1),
		jobs:       make(chan Job),
		results:    make(chan Result, config.Workers),
		ctx:        ctx,
		cancel:     cancel,
		dispatched: make(chan struct{}),
		applied:    make(chan struct{}),
	}
}

// Start launches the dispatcher, the encoder pool and the applier.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	logging.Info("Starting transcode worker with %d encoder(s)", w.config.Workers)

	go w.dispatch()
	for i := 0; i < w.config.Workers; i++ {
		w.encoders.Add(1)
		go w.encode()
	}
	go w.apply()
}

// Submit queues a job and returns without waiting for the encode.
func (w *Worker) Submit(ctx context.Context, galleryID, storedName string) error {
	job := Job{GalleryID: galleryID, StoredName: storedName}

	id, err := w.recorder.Queue(ctx, galleryID, storedName)
	if err != nil {
		logging.Warn("Failed to journal transcode job for %s/%s: %v", galleryID, storedName, err)
	}
	job.journalID = id

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.finishJournal(job, "", ErrStopped)
		return ErrStopped
	}
	w.queue = append(w.queue, job)
	depth := len(w.queue)
	w.mu.Unlock()

	metrics.TranscoderQueueDepth.Set(float64(depth))
	logging.Debug("Queued transcode for %s/%s (queue depth %d)", galleryID, storedName, depth)

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// dispatch moves queued jobs to the encoder pool one at a time. On stop,
// jobs still waiting are reported as failed.
func (w *Worker) dispatch() {
	defer close(w.dispatched)
	defer close(w.jobs)

	for {
		job, ok := w.next()
		if !ok {
			select {
			case <-w.notify:
				continue
			case <-w.ctx.Done():
				return
			}
		}

		select {
		case w.jobs <- job:
		case <-w.ctx.Done():
			w.results <- Result{Job: job, Err: ErrStopped}
			return
		}
	}
}

func (w *Worker) next() (Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return Job{}, false
	}
	job := w.queue[0]
	w.queue = w.queue[1:]
	metrics.TranscoderQueueDepth.Set(float64(len(w.queue)))
	return job, true
}

func (w *Worker) encode() {
	defer w.encoders.Done()

	for job := range w.jobs {
		w.results <- w.run(job)
	}
}

// run encodes one job.
func (w *Worker) run(job Job) Result {
	input := w.store.MediaPath(job.GalleryID, job.StoredName)
	outputName := OutputName(job.StoredName)
	output := w.store.MediaPath(job.GalleryID, outputName)

	if err := w.recorder.Start(w.ctx, job.journalID); err != nil && job.journalID != 0 {
		logging.Warn("Failed to journal start of job %d: %v", job.journalID, err)
	}

	ctx := w.ctx
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	metrics.TranscoderJobsInProgress.Inc()
	defer metrics.TranscoderJobsInProgress.Dec()

	logging.Info("Transcoding %s/%s", job.GalleryID, job.StoredName)
	start := time.Now()
	err := w.encoder.Encode(ctx, input, output)
	elapsed := time.Since(start)
	metrics.TranscoderJobDuration.Observe(elapsed.Seconds())

	if err != nil {
		if !errors.Is(err, ErrTranscode) {
			err = fmt.Errorf("%w: %w", ErrTranscode, err)
		}
		return Result{Job: job, OutputName: outputName, Err: err, Duration: elapsed}
	}
	return Result{Job: job, OutputName: outputName, Duration: elapsed}
}

// apply is the only goroutine that writes transcode outcomes to catalogs.
// The original upload is deleted only after the catalog points at the
// output, so a failed catalog write never leaves a dangling reference.
func (w *Worker) apply() {
	defer close(w.applied)

	for res := range w.results {
		w.record(res)
	}
}

func (w *Worker) record(res Result) {
	job := res.Job
	applied, err := w.applier.ApplyTranscode(job.GalleryID, job.StoredName, res.OutputName, res.Err)

	status := "done"
	switch {
	case err != nil:
		logging.Error("Failed to record transcode outcome for %s/%s: %v", job.GalleryID, job.StoredName, err)
		status = "failed"
		if res.Err == nil {
			res.Err = err
		}
	case !applied:
		status = "orphaned"
		logging.Info("Item %s/%s was removed during transcoding, discarding output", job.GalleryID, job.StoredName)
		if res.Err == nil {
			w.removeFile(job.GalleryID, res.OutputName)
		}
	case res.Err != nil:
		status = "failed"
		logging.Warn("Transcode failed for %s/%s after %v: %v", job.GalleryID, job.StoredName, res.Duration.Round(time.Millisecond), res.Err)
	default:
		logging.Info("Transcoded %s/%s -> %s in %v", job.GalleryID, job.StoredName, res.OutputName, res.Duration.Round(time.Millisecond))
		w.removeFile(job.GalleryID, job.StoredName)
	}
	metrics.TranscoderJobsTotal.WithLabelValues(status).Inc()

	output := res.OutputName
	if res.Err != nil {
		output = ""
	}
	w.finishJournal(job, output, res.Err)

	if w.config.OnResult != nil {
		w.config.OnResult(res)
	}
}

func (w *Worker) removeFile(galleryID, name string) {
	if err := os.Remove(w.store.MediaPath(galleryID, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Failed to remove %s/%s: %v", galleryID, name, err)
	}
}

func (w *Worker) finishJournal(job Job, output string, jobErr error) {
	if job.journalID == 0 {
		return
	}
	// The worker context may already be cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.recorder.Finish(ctx, job.journalID, output, jobErr); err != nil {
		logging.Warn("Failed to journal outcome of job %d: %v", job.journalID, err)
	}
}

// Pending returns the number of jobs waiting for an encoder.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stop stops accepting jobs, cancels running encodes and waits until every
// outcome, including jobs that never started, has been applied. It returns
// ctx.Err() if ctx expires first.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	leftover := w.queue
	w.queue = nil
	w.mu.Unlock()

	w.cancel()

	if !started {
		for _, job := range leftover {
			w.record(Result{Job: job, Err: ErrStopped})
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		<-w.dispatched
		w.encoders.Wait()
		for _, job := range leftover {
			w.results <- Result{Job: job, Err: ErrStopped}
		}
		close(w.results)
		<-w.applied
		close(done)
	}()

	select {
	case <-done:
		metrics.TranscoderQueueDepth.Set(0)
		logging.Info("Transcode worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopRecorder struct{}

func (nopRecorder) Queue(context.Context, string, string) (int64, error) { return 0, nil }
func (nopRecorder) Start(context.Context, int64) error                   { return nil }
func (nopRecorder) Finish(context.Context, int64, string, error) error   { return nil }
