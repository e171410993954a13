package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

// errNoChange aborts an Update without writing and without reporting an error.
var errNoChange = errors.New("no change")

type galleryLock struct {
	mu   sync.Mutex
	refs int
}

// Repository loads and saves catalogs. Every mutation runs under a mutex
// keyed by gallery id.
type Repository struct {
	store *mediastore.Store
	retry filesystem.RetryConfig

	locksMu sync.Mutex
	locks   map[string]*galleryLock

	// now is replaceable in tests.
	now func() time.Time
}

// NewRepository creates a repository over store.
func NewRepository(store *mediastore.Store) *Repository {
	return &Repository{
		store: store,
		retry: filesystem.DefaultRetryConfig(),
		locks: make(map[string]*galleryLock),
		now:   time.Now,
	}
}

// Store returns the media store the repository writes under.
func (r *Repository) Store() *mediastore.Store {
	return r.store
}

// lock acquires the mutex for id and returns its release function.
// Entries are reference counted so the map does not grow without bound.
func (r *Repository) lock(id string) func() {
	start := time.Now()

	r.locksMu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &galleryLock{}
		r.locks[id] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	metrics.CatalogLockWait.Observe(time.Since(start).Seconds())

	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.locksMu.Unlock()
	}
}

// Exists reports whether the gallery has a catalog document.
func (r *Repository) Exists(id string) bool {
	if !mediastore.ValidGalleryID(id) {
		return false
	}
	_, err := filesystem.StatWithRetry(r.store.CatalogPath(id), r.retry)
	return err == nil
}

// HasItem reports whether the gallery's catalog lists stored. Missing and
// corrupt catalogs list nothing.
func (r *Repository) HasItem(id, stored string) bool {
	c, err := r.Load(id)
	if err != nil {
		return false
	}
	return c.Index(stored) >= 0
}

// Load reads a gallery's catalog. A missing document yields ErrNotFound.
// An unparsable document yields a placeholder catalog together with an
// error wrapping ErrCorrupt, so read-only callers can keep going.
func (r *Repository) Load(id string) (*Catalog, error) {
	if !mediastore.ValidGalleryID(id) {
		return nil, fmt.Errorf("%w: gallery %q", ErrNotFound, id)
	}

	start := time.Now()
	data, err := filesystem.ReadFileWithRetry(r.store.CatalogPath(id), r.retry)
	metrics.CatalogOperationDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: gallery %q", ErrNotFound, id)
		}
		metrics.CatalogOperationsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("%w: read catalog %s: %w", ErrStorage, id, err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		metrics.CatalogOperationsTotal.WithLabelValues("load", "error").Inc()
		metrics.CatalogCorruptTotal.Inc()
		return Placeholder(id), fmt.Errorf("%w: gallery %q: %w", ErrCorrupt, id, err)
	}
	c.normalize(id)

	metrics.CatalogOperationsTotal.WithLabelValues("load", "success").Inc()
	return &c, nil
}

// Save overwrites a gallery's catalog document. Output is indented with two
// spaces and keys follow struct order, so the file diffs cleanly.
func (r *Repository) Save(id string, c *Catalog) error {
	unlock := r.lock(id)
	defer unlock()
	return r.save(id, c)
}

func (r *Repository) save(id string, c *Catalog) error {
	if !mediastore.ValidGalleryID(id) {
		return fmt.Errorf("%w: gallery %q", ErrValidation, id)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode catalog %s: %w", ErrStorage, id, err)
	}
	data = append(data, '\n')

	start := time.Now()
	err = filesystem.WriteFileAtomic(r.store.CatalogPath(id), data, 0o644)
	metrics.CatalogOperationDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogOperationsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("%w: write catalog %s: %w", ErrStorage, id, err)
	}

	metrics.CatalogOperationsTotal.WithLabelValues("save", "success").Inc()
	return nil
}

// Update runs one load-mutate-save cycle while holding the gallery lock.
// A corrupt document is moved aside and fn receives a placeholder. If fn
// returns an error nothing is written.
func (r *Repository) Update(id string, fn func(*Catalog) error) error {
	unlock := r.lock(id)
	defer unlock()
	return r.update(id, fn)
}

func (r *Repository) update(id string, fn func(*Catalog) error) error {
	c, err := r.Load(id)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		logging.Warn("Catalog for %s is corrupt, replacing with placeholder: %v", id, err)
		if qerr := r.quarantine(id); qerr != nil {
			return qerr
		}
	}

	if err := fn(c); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}

	return r.save(id, c)
}

// quarantine renames a corrupt catalog to gallery.json.corrupt.<unix> so the
// original bytes survive for inspection.
func (r *Repository) quarantine(id string) error {
	src := r.store.CatalogPath(id)
	dst := src + ".corrupt." + strconv.FormatInt(r.now().Unix(), 10)
	if err := os.Rename(src, dst); err != nil {
		metrics.CatalogOperationsTotal.WithLabelValues("quarantine", "error").Inc()
		return fmt.Errorf("%w: quarantine catalog %s: %w", ErrStorage, id, err)
	}
	metrics.CatalogOperationsTotal.WithLabelValues("quarantine", "success").Inc()
	logging.Warn("Moved corrupt catalog %s to %s", src, dst)
	return nil
}

// Create writes c as the gallery's catalog unless one already exists.
// It reports whether a document was written.
func (r *Repository) Create(id string, c *Catalog) (bool, error) {
	unlock := r.lock(id)
	defer unlock()

	if r.Exists(id) {
		return false, nil
	}
	if err := r.store.EnsureLayout(id); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := r.save(id, c); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the gallery's entire subtree while holding its lock, so no
// in-flight mutation can recreate the catalog halfway.
func (r *Repository) Delete(id string) error {
	unlock := r.lock(id)
	defer unlock()

	if !r.store.GalleryExists(id) {
		return fmt.Errorf("%w: gallery %q", ErrNotFound, id)
	}
	if err := r.store.RemoveGallery(id); err != nil {
		return fmt.Errorf("%w: remove gallery %s: %w", ErrStorage, id, err)
	}
	return nil
}
