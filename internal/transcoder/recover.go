package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/darbyjahn/smallphot0-backend/internal/journal"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

// JobLog lists jobs a previous process left unfinished.
type JobLog interface {
	Interrupted(ctx context.Context) ([]journal.Job, error)
	Finish(ctx context.Context, id int64, outputName string, jobErr error) error
}

// RecoveryCatalog applies recovered outcomes and answers whether an item is
// still listed under a given name.
type RecoveryCatalog interface {
	Applier
	HasItem(galleryID, stored string) bool
}

// Recover resolves every job left queued or running by a previous process.
// Jobs are not retried.
//
//   - Item still listed under its original name: marked failed, partial
//     output removed.
//   - Item already listed under its output name (the catalog was saved but
//     the journal was not): kept as done with its output, the original is
//     removed.
//   - Item gone: both files are removed.
//
// It returns the number of jobs resolved.
func Recover(ctx context.Context, log JobLog, store *mediastore.Store, catalogs RecoveryCatalog) (int, error) {
	jobs, err := log.Interrupted(ctx)
	if err != nil {
		return 0, fmt.Errorf("list interrupted jobs: %w", err)
	}

	for _, job := range jobs {
		output := OutputName(job.StoredName)

		applied, err := catalogs.ApplyTranscode(job.GalleryID, job.StoredName, "", ErrInterrupted)
		switch {
		case err != nil:
			// Leave files and journal untouched; the next start tries again.
			logging.Error("Failed to recover transcode %s/%s: %v", job.GalleryID, job.StoredName, err)
			continue

		case applied:
			removeMedia(store, job.GalleryID, output)
			finish(ctx, log, job.ID, "", ErrInterrupted)
			metrics.TranscoderJobsTotal.WithLabelValues("interrupted").Inc()
			logging.Warn("Transcode of %s/%s was interrupted by a restart, marked failed", job.GalleryID, job.StoredName)

		case catalogs.HasItem(job.GalleryID, output):
			removeMedia(store, job.GalleryID, job.StoredName)
			finish(ctx, log, job.ID, output, nil)
			metrics.TranscoderJobsTotal.WithLabelValues("done").Inc()
			logging.Info("Transcode of %s/%s had completed before the restart, kept %s", job.GalleryID, job.StoredName, output)

		default:
			removeMedia(store, job.GalleryID, output)
			removeMedia(store, job.GalleryID, job.StoredName)
			finish(ctx, log, job.ID, "", ErrInterrupted)
			metrics.TranscoderJobsTotal.WithLabelValues("orphaned").Inc()
			logging.Info("Item %s/%s no longer exists, discarded interrupted transcode", job.GalleryID, job.StoredName)
		}
	}

	return len(jobs), nil
}

func removeMedia(store *mediastore.Store, galleryID, name string) {
	path := store.MediaPath(galleryID, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Failed to remove %s: %v", path, err)
	}
}

func finish(ctx context.Context, log JobLog, id int64, output string, jobErr error) {
	if err := log.Finish(ctx, id, output, jobErr); err != nil {
		logging.Warn("Failed to journal recovery of job %d: %v", id, err)
	}
}
