package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/directory"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
	"github.com/darbyjahn/smallphot0-backend/internal/thumbnail"
)

// DefaultMaxVideos is the per-batch video cap.
const DefaultMaxVideos = 3

var (
	// ErrEmptyBatch rejects an upload with no files.
	ErrEmptyBatch = fmt.Errorf("%w: no files in upload", catalog.ErrValidation)
	// ErrTooManyVideos rejects a batch above the video cap.
	ErrTooManyVideos = fmt.Errorf("%w: too many videos in one upload", catalog.ErrValidation)
	// ErrUnsupportedType rejects a single file with a disallowed extension.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", catalog.ErrValidation)
)

// File is one uploaded file. When Path is set the upload is already spooled
// to disk and is moved into place. Otherwise Open is called once, when the
// file's turn comes, so a large batch never holds every upload open at the
// same time.
type File struct {
	Name string
	Path string
	Open func() (io.ReadCloser, error)
}

// Request is one upload batch. Title and colors are used only when the
// gallery does not exist yet.
type Request struct {
	GalleryID string
	Title     string
	BgColor   string
	TextColor string
	Files     []File
}

// FileResult is the outcome for one file of a batch.
type FileResult struct {
	Name   string          `json:"name"`
	Stored string          `json:"stored,omitempty"`
	Type   mediatypes.Kind `json:"type,omitempty"`
	Status catalog.Status  `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`

	Err error `json:"-"`
}

// Result is the aggregate outcome of a batch.
type Result struct {
	GalleryID string       `json:"gallery"`
	Batch     int64        `json:"batch"`
	Created   bool         `json:"created"`
	Files     []FileResult `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// OK reports whether every file was stored.
func (r *Result) OK() bool {
	return r.Failed == 0
}

// Ensurer creates a gallery if it is missing.
type Ensurer interface {
	EnsureExists(e directory.Entry) (bool, error)
}

// Submitter queues a video for transcoding without waiting for it.
type Submitter interface {
	Submit(ctx context.Context, galleryID, storedName string) error
}

// Thumbnailer renders an image preview.
type Thumbnailer interface {
	Generate(src, dst string) error
}

// MemoryGuard reports when optional in-process work should be skipped.
type MemoryGuard interface {
	Throttled() bool
}

// Pipeline runs ingest batches.
type Pipeline struct {
	galleries  Ensurer
	repo       *catalog.Repository
	store      *mediastore.Store
	transcoder Submitter
	thumbs     Thumbnailer
	memory     MemoryGuard
	maxVideos  int

	now func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscoder enables video transcoding. Without it videos are stored
// as uploaded, with no processing state.
func WithTranscoder(s Submitter) Option {
	return func(p *Pipeline) { p.transcoder = s }
}

// WithThumbnails enables image thumbnails.
func WithThumbnails(t Thumbnailer) Option {
	return func(p *Pipeline) { p.thumbs = t }
}

// WithMemoryGuard skips thumbnails while g reports memory pressure.
func WithMemoryGuard(g MemoryGuard) Option {
	return func(p *Pipeline) { p.memory = g }
}

// WithMaxVideos sets the per-batch video cap. Values below 1 keep the default.
func WithMaxVideos(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxVideos = n
		}
	}
}

// New creates a Pipeline.
func New(galleries Ensurer, repo *catalog.Repository, opts ...Option) *Pipeline {
	p := &Pipeline{
		galleries: galleries,
		repo:      repo,
		store:     repo.Store(),
		maxVideos: DefaultMaxVideos,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores a batch. Batch-level validation happens before any side
// effect; after that each file succeeds or fails on its own and earlier
// successes are kept. The returned error is non-nil only when the whole
// batch was rejected.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	defer func() {
		metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.validate(req); err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	created, err := p.galleries.EnsureExists(directory.Entry{
		ID:        req.GalleryID,
		Title:     req.Title,
		BgColor:   req.BgColor,
		TextColor: req.TextColor,
	})
	if err != nil {
		metrics.IngestBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("ensure gallery %s: %w", req.GalleryID, err)
	}

	res := &Result{
		GalleryID: req.GalleryID,
		Batch:     start.UnixMilli(),
		Created:   created,
		Files:     make([]FileResult, 0, len(req.Files)),
	}

	for i, f := range req.Files {
		var fr FileResult
		if err := ctx.Err(); err != nil {
			fr = failed(f.Name, "", err)
		} else {
			fr = p.ingestFile(ctx, req.GalleryID, res.Batch, i, f)
		}

		if fr.Err != nil {
			res.Failed++
			logging.Warn("Upload of %q to %s failed: %v", f.Name, req.GalleryID, fr.Err)
		} else {
			res.Succeeded++
		}
		res.Files = append(res.Files, fr)
	}

	switch {
	case res.Failed == 0:
		metrics.IngestBatchesTotal.WithLabelValues("complete").Inc()
	case res.Succeeded == 0:
		metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
	default:
		metrics.IngestBatchesTotal.WithLabelValues("partial").Inc()
	}

	logging.Info("Upload to %s: %d stored, %d failed (batch %d)", req.GalleryID, res.Succeeded, res.Failed, res.Batch)
	return res, nil
}

// validate applies the checks that reject the whole batch.
func (p *Pipeline) validate(req Request) error {
	if !mediastore.ValidGalleryID(req.GalleryID) {
		return fmt.Errorf("%w: invalid gallery id %q", catalog.ErrValidation, req.GalleryID)
	}
	if len(req.Files) == 0 {
		return ErrEmptyBatch
	}

	videos := 0
	for _, f := range req.Files {
		if kind, ok := mediatypes.KindOf(f.Name); ok && kind == mediatypes.KindVideo {
			videos++
		}
	}
	if videos > p.maxVideos {
		return fmt.Errorf("%w: %d videos, at most %d allowed", ErrTooManyVideos, videos, p.maxVideos)
	}
	return nil
}

// ingestFile stores one file and appends its catalog record. The bytes are
// written before the catalog lock is taken; the catalog is reloaded for
// every file so concurrent writers never lose an update.
func (p *Pipeline) ingestFile(ctx context.Context, galleryID string, batch int64, seq int, f File) FileResult {
	ext := mediatypes.Ext(f.Name)
	kind, ok := mediatypes.Lookup(ext)
	if !ok {
		metrics.IngestFilesTotal.WithLabelValues("unknown", "error_unsupported").Inc()
		return failed(f.Name, "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext))
	}

	stored := mediastore.NewStoredName(ext)
	if err := p.storeBytes(galleryID, stored, f); err != nil {
		metrics.IngestFilesTotal.WithLabelValues(string(kind), "error_storage").Inc()
		return failed(f.Name, kind, err)
	}

	item := catalog.Item{Stored: stored, Batch: batch, Seq: seq, Type: kind}
	transcode := kind == mediatypes.KindVideo && p.transcoder != nil
	if transcode {
		item.Status = catalog.StatusPending
	}

	if err := p.repo.AppendItem(galleryID, item); err != nil {
		if rmErr := p.store.Remove(galleryID, stored); rmErr != nil {
			logging.Warn("Failed to remove %s/%s after catalog error: %v", galleryID, stored, rmErr)
		}
		metrics.IngestFilesTotal.WithLabelValues(string(kind), "error_catalog").Inc()
		return failed(f.Name, kind, err)
	}

	metrics.IngestFilesTotal.WithLabelValues(string(kind), "success").Inc()
	fr := FileResult{Name: f.Name, Stored: stored, Type: kind, Status: item.Status}

	if transcode {
		if err := p.transcoder.Submit(ctx, galleryID, stored); err != nil {
			// The file is stored and servable; only the conversion is lost.
			logging.Error("Failed to queue transcode for %s/%s: %v", galleryID, stored, err)
			if _, aerr := p.repo.ApplyTranscode(galleryID, stored, "", err); aerr != nil {
				logging.Error("Failed to mark %s/%s as failed: %v", galleryID, stored, aerr)
			}
			fr.Status = catalog.StatusFailed
		}
	}

	if kind == mediatypes.KindImage && p.thumbs != nil && thumbnail.Supported(stored) {
		if p.memory != nil && p.memory.Throttled() {
			metrics.ThumbnailGenerationsTotal.WithLabelValues("skipped").Inc()
			logging.Debug("Skipping thumbnail for %s/%s under memory pressure", galleryID, stored)
			return fr
		}
		if err := p.thumbs.Generate(p.store.MediaPath(galleryID, stored), p.store.ThumbPath(galleryID, stored)); err != nil {
			logging.Debug("No thumbnail for %s/%s: %v", galleryID, stored, err)
		}
	}

	return fr
}

func (p *Pipeline) storeBytes(galleryID, stored string, f File) error {
	if f.Path != "" {
		if err := p.store.MoveIn(galleryID, stored, f.Path); err != nil {
			return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
		}
		if info, err := os.Stat(p.store.MediaPath(galleryID, stored)); err == nil {
			metrics.IngestBytesTotal.Add(float64(info.Size()))
		}
		return nil
	}
	if f.Open == nil {
		return fmt.Errorf("%w: no content for %q", catalog.ErrValidation, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open upload %q: %w", catalog.ErrStorage, f.Name, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logging.Debug("failed to close upload %q: %v", f.Name, err)
		}
	}()

	n, err := p.store.Put(galleryID, stored, rc)
	if err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	metrics.IngestBytesTotal.Add(float64(n))
	return nil
}

func failed(name string, kind mediatypes.Kind, err error) FileResult {
	return FileResult{Name: name, Type: kind, Error: errorMessage(err), Err: err}
}

// errorMessage is the client-facing text for a per-file failure. Storage
// details stay in the server log.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported file type"
	case errors.Is(err, catalog.ErrValidation):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "upload cancelled"
	case errors.Is(err, catalog.ErrNotFound):
		return "gallery was removed during upload"
	default:
		return "failed to store file"
	}
}
