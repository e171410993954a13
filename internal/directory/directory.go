// Package directory maintains galleries.json, the top-level index of
// galleries, and the lifecycle of a gallery's on-disk layout.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{3,8}$`)

var errCorrupt = errors.New("unparsable gallery directory")

// Entry is one gallery in the directory.
type Entry struct {
	ID        string `json:"username"`
	Title     string `json:"title"`
	BgColor   string `json:"bg_color"`
	TextColor string `json:"text_color"`
}

type document struct {
	Users []Entry `json:"users"`
}

// Directory reads and writes galleries.json and creates or removes gallery
// layouts. Writers are serialized by a single mutex.
type Directory struct {
	store    *mediastore.Store
	repo     *catalog.Repository
	template string

	mu sync.Mutex
}

// New creates a Directory. template is the gallery page copied into new
// galleries as index.html; empty disables the copy.
func New(repo *catalog.Repository, template string) *Directory {
	return &Directory{
		store:    repo.Store(),
		repo:     repo,
		template: template,
	}
}

// Validate checks an entry's id and colors.
func (e Entry) Validate() error {
	if !mediastore.ValidGalleryID(e.ID) {
		return fmt.Errorf("%w: gallery id must match [A-Za-z0-9_-]{1,64}, got %q", catalog.ErrValidation, e.ID)
	}
	for _, c := range []string{e.BgColor, e.TextColor} {
		if c != "" && !colorPattern.MatchString(c) {
			return fmt.Errorf("%w: invalid color %q", catalog.ErrValidation, c)
		}
	}
	return nil
}

// List returns every directory entry in insertion order. A missing or
// unreadable directory file yields an empty list.
func (d *Directory) List() ([]Entry, error) {
	doc, err := d.read()
	if err != nil {
		return nil, err
	}
	return doc.Users, nil
}

// Get returns the entry for id.
func (d *Directory) Get(id string) (Entry, bool) {
	doc, err := d.read()
	if err != nil {
		return Entry{}, false
	}
	for _, e := range doc.Users {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// EnsureExists creates the gallery layout, an initial catalog and a
// directory entry for whatever is missing. Existing catalogs and entries are
// never modified. It reports whether anything was created.
func (d *Directory) EnsureExists(e Entry) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.ensure(e)
}

// Create makes a new gallery and fails with ErrAlreadyExists if the id is in
// the directory or already has a catalog.
func (d *Directory) Create(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.readForWrite()
	if err != nil {
		return err
	}
	if indexOf(doc.Users, e.ID) >= 0 || d.repo.Exists(e.ID) {
		return fmt.Errorf("%w: gallery %q", catalog.ErrAlreadyExists, e.ID)
	}

	_, err = d.ensure(e)
	return err
}

func (d *Directory) ensure(e Entry) (bool, error) {
	c := catalog.New(e.ID, e.Title, e.BgColor, e.TextColor)
	createdCatalog, err := d.repo.Create(e.ID, c)
	if err != nil {
		return false, fmt.Errorf("create gallery %s: %w", e.ID, err)
	}
	if err := d.store.EnsureLayout(e.ID); err != nil {
		return false, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	if err := d.copyTemplate(e.ID); err != nil {
		return false, err
	}

	doc, err := d.readForWrite()
	if err != nil {
		return false, err
	}
	if indexOf(doc.Users, e.ID) >= 0 {
		return createdCatalog, nil
	}

	e.Title = c.Title
	e.BgColor = c.BgColor
	e.TextColor = c.TextColor
	doc.Users = append(doc.Users, e)
	if err := d.write(doc); err != nil {
		return false, err
	}

	logging.Info("Created gallery %s", e.ID)
	return true, nil
}

// Update changes a gallery's title and colors in both its catalog and its
// directory entry. Blank values keep the current one.
func (d *Directory) Update(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.repo.UpdateMetadata(e.ID, e.Title, e.BgColor, e.TextColor); err != nil {
		return err
	}

	doc, err := d.readForWrite()
	if err != nil {
		return err
	}
	i := indexOf(doc.Users, e.ID)
	if i < 0 {
		return nil
	}
	if e.Title != "" {
		doc.Users[i].Title = e.Title
	}
	if e.BgColor != "" {
		doc.Users[i].BgColor = e.BgColor
	}
	if e.TextColor != "" {
		doc.Users[i].TextColor = e.TextColor
	}
	return d.write(doc)
}

// Remove deletes the gallery's directory entry and its whole subtree.
func (d *Directory) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.readForWrite()
	if err != nil {
		return err
	}
	i := indexOf(doc.Users, id)

	err = d.repo.Delete(id)
	switch {
	case errors.Is(err, catalog.ErrNotFound) && i < 0:
		return fmt.Errorf("%w: gallery %q", catalog.ErrNotFound, id)
	case err != nil && !errors.Is(err, catalog.ErrNotFound):
		return err
	}

	if i >= 0 {
		doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
		if err := d.write(doc); err != nil {
			return err
		}
	}

	logging.Info("Removed gallery %s", id)
	return nil
}

// copyTemplate installs the gallery page unless one is already present.
func (d *Directory) copyTemplate(id string) error {
	if d.template == "" {
		return nil
	}
	dst := d.store.IndexPath(id)
	if filesystem.Exists(dst) {
		return nil
	}

	data, err := os.ReadFile(d.template)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Gallery template %s not found, skipping page copy for %s", d.template, id)
			return nil
		}
		return fmt.Errorf("%w: read gallery template: %w", catalog.ErrStorage, err)
	}
	if err := filesystem.WriteFileAtomic(dst, data, 0o644); err != nil {
		return fmt.Errorf("%w: write gallery page for %s: %w", catalog.ErrStorage, id, err)
	}
	return nil
}

func (d *Directory) read() (*document, error) {
	doc, err := d.decode()
	if errors.Is(err, errCorrupt) {
		logging.Error("Gallery directory %s is unparsable, treating as empty: %v", d.store.DirectoryPath(), err)
		return &document{Users: []Entry{}}, nil
	}
	return doc, err
}

// readForWrite is read for callers about to write the directory. An
// unparsable file is moved aside first so the write cannot destroy it.
func (d *Directory) readForWrite() (*document, error) {
	doc, err := d.decode()
	if !errors.Is(err, errCorrupt) {
		return doc, err
	}

	src := d.store.DirectoryPath()
	dst := src + ".corrupt." + strconv.FormatInt(time.Now().Unix(), 10)
	if rerr := os.Rename(src, dst); rerr != nil {
		return nil, fmt.Errorf("%w: quarantine gallery directory: %w", catalog.ErrStorage, rerr)
	}
	logging.Warn("Gallery directory was unparsable (%v), moved to %s", err, dst)
	return &document{Users: []Entry{}}, nil
}

func (d *Directory) decode() (*document, error) {
	data, err := filesystem.ReadFileWithRetry(d.store.DirectoryPath(), filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &document{Users: []Entry{}}, nil
		}
		return nil, fmt.Errorf("%w: read gallery directory: %w", catalog.ErrStorage, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	if doc.Users == nil {
		doc.Users = []Entry{}
	}
	return &doc, nil
}

func (d *Directory) write(doc *document) error {
	if err := os.MkdirAll(d.store.Root(), 0o755); err != nil {
		return fmt.Errorf("%w: create data directory: %w", catalog.ErrStorage, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode gallery directory: %w", catalog.ErrStorage, err)
	}
	data = append(data, '\n')
	if err := filesystem.WriteFileAtomic(d.store.DirectoryPath(), data, 0o644); err != nil {
		return fmt.Errorf("%w: write gallery directory: %w", catalog.ErrStorage, err)
	}
	metrics.GalleriesTotal.Set(float64(len(doc.Users)))
	return nil
}

// GetStats implements metrics.StatsProvider by loading every listed catalog.
func (d *Directory) GetStats() metrics.Stats {
	entries, err := d.List()
	if err != nil {
		logging.Warn("Failed to list galleries for metrics: %v", err)
		return metrics.Stats{}
	}

	stats := metrics.Stats{TotalGalleries: len(entries)}
	for _, e := range entries {
		c, err := d.repo.Load(e.ID)
		if err != nil && !errors.Is(err, catalog.ErrCorrupt) {
			continue
		}
		n := c.Count()
		stats.TotalImages += n.Images
		stats.TotalVideos += n.Videos
		stats.PendingVideos += n.Pending
		stats.DoneVideos += n.Done
		stats.FailedVideos += n.Failed
	}
	return stats
}

func indexOf(entries []Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
