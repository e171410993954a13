package handlers

import (
	"context"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/access"
	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/directory"
	"github.com/darbyjahn/smallphot0-backend/internal/ingest"
	"github.com/darbyjahn/smallphot0-backend/internal/journal"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/startup"
)

// JobLister reads the transcode journal.
type JobLister interface {
	Get(ctx context.Context, id int64) (*journal.Job, error)
	Recent(ctx context.Context, limit int) ([]journal.Job, error)
	Counts(ctx context.Context) (map[journal.State]int, error)
	Ping(ctx context.Context) error
}

// QueueReporter reports how many transcodes are waiting.
type QueueReporter interface {
	Pending() int
}

// EncoderReporter reports how many encoder processes are running.
type EncoderReporter interface {
	Running() int
}

// MemoryReporter exposes the memory guard's last sample.
type MemoryReporter interface {
	Usage() (alloc uint64, ratio float64)
	Limit() int64
	Throttled() bool
}

type Handlers struct {
	galleries *directory.Directory
	repo      *catalog.Repository
	store     *mediastore.Store
	pipeline  *ingest.Pipeline
	limiter   *access.Limiter

	jobs    JobLister
	queue   QueueReporter
	encoder EncoderReporter
	memory  MemoryReporter

	maxUploadBytes int64
	startTime      time.Time
}

func New(galleries *directory.Directory, repo *catalog.Repository, pipeline *ingest.Pipeline, config *startup.Config) *Handlers {
	return &Handlers{
		galleries:      galleries,
		repo:           repo,
		store:          repo.Store(),
		pipeline:       pipeline,
		limiter:        access.NewLimiter(config.PINAttemptsPerMinute),
		maxUploadBytes: config.MaxUploadBytes,
		startTime:      time.Now(),
	}
}

// SetTranscoder exposes the job journal and queue depth. Both are nil when
// transcoding is disabled.
func (h *Handlers) SetTranscoder(jobs JobLister, queue QueueReporter) {
	h.jobs = jobs
	h.queue = queue
}

// SetEncoder exposes the number of running encoder processes.
func (h *Handlers) SetEncoder(e EncoderReporter) {
	h.encoder = e
}

// SetMemoryGuard exposes heap usage on the health endpoint.
func (h *Handlers) SetMemoryGuard(m MemoryReporter) {
	h.memory = m
}

// PruneLimiter drops idle unlock limiters.
func (h *Handlers) PruneLimiter(idle time.Duration) int {
	return h.limiter.Prune(idle)
}
