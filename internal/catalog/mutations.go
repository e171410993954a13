package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
)

// AppendItem reloads the catalog, appends item and saves. Ingest calls it
// once per file so a concurrent writer can never be overwritten by a stale
// in-memory copy.
func (r *Repository) AppendItem(id string, item Item) error {
	return r.Update(id, func(c *Catalog) error {
		if c.Index(item.Stored) >= 0 {
			return fmt.Errorf("%w: item %q already in gallery %s", ErrAlreadyExists, item.Stored, id)
		}
		c.Items = append(c.Items, item)
		return nil
	})
}

// ApplyTranscode records the outcome of a video conversion on the item
// identified by its pre-transcode stored name. On success the stored name is
// rewritten to output and the status becomes done; on failure the status
// becomes failed. It reports false and writes nothing when the item no
// longer exists.
func (r *Repository) ApplyTranscode(id, stored, output string, transcodeErr error) (bool, error) {
	applied := false
	err := r.Update(id, func(c *Catalog) error {
		i := c.Index(stored)
		if i < 0 {
			return errNoChange
		}
		if transcodeErr != nil {
			c.Items[i].Status = StatusFailed
		} else {
			c.Items[i].Stored = output
			c.Items[i].Type = mediatypes.KindVideo
			c.Items[i].Status = StatusDone
		}
		applied = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return applied, err
}

// DeleteItem removes a stored file and its catalog entry in one locked
// cycle. The gallery, the entry and the file must all exist.
func (r *Repository) DeleteItem(id, stored string) error {
	unlock := r.lock(id)
	defer unlock()

	if !r.store.Exists(id, stored) {
		return fmt.Errorf("%w: file %q in gallery %s", ErrNotFound, stored, id)
	}

	err := r.update(id, func(c *Catalog) error {
		i := c.Index(stored)
		if i < 0 {
			return fmt.Errorf("%w: item %q in gallery %s", ErrNotFound, stored, id)
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	// The entry is gone from the saved catalog, so a failure here leaves an
	// unreferenced file rather than a dangling reference.
	if err := r.store.Remove(id, stored); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Removed %s from catalog %s but failed to delete file: %v", stored, id, err)
	}
	return nil
}

// OrderEntry is one element of a reorder request.
type OrderEntry struct {
	Stored   string `json:"stored"`
	Rotation *int   `json:"rotation,omitempty"`
}

// Reorder puts the items named in order first, keeping each item's other
// fields and applying a rotation where one is given. Names not in the
// catalog and repeated names are skipped. Items the request does not name,
// such as uploads that landed after the client read the catalog, follow in
// their current relative order. It returns the saved catalog.
func (r *Repository) Reorder(id string, order []OrderEntry) (*Catalog, error) {
	var result *Catalog
	err := r.Update(id, func(c *Catalog) error {
		byName := make(map[string]Item, len(c.Items))
		for _, it := range c.Items {
			byName[it.Stored] = it
		}

		items := make([]Item, 0, len(c.Items))
		used := make(map[string]bool, len(order))
		for _, e := range order {
			it, ok := byName[e.Stored]
			if !ok || used[e.Stored] {
				continue
			}
			used[e.Stored] = true
			if e.Rotation != nil {
				rot := normalizeRotation(*e.Rotation)
				it.Rotation = &rot
			}
			items = append(items, it)
		}
		for _, it := range c.Items {
			if !used[it.Stored] {
				items = append(items, it)
			}
		}

		c.Items = items
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// normalizeRotation maps any degree value into [0, 360).
func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SetPIN stores an already-hashed PIN. An empty value clears it.
func (r *Repository) SetPIN(id, hashed string) error {
	return r.Update(id, func(c *Catalog) error {
		c.PIN = hashed
		return nil
	})
}

// UpdateMetadata changes display metadata. Blank values keep the current one.
func (r *Repository) UpdateMetadata(id, title, bg, text string) error {
	return r.Update(id, func(c *Catalog) error {
		if title != "" {
			c.Title = title
		}
		if bg != "" {
			c.BgColor = bg
		}
		if text != "" {
			c.TextColor = text
		}
		return nil
	})
}
