package catalog

import (
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
)

// Default theme colors applied when a catalog omits them.
const (
	DefaultBackground = "#ffffff"
	DefaultText       = "#000000"
)

// Status is the processing state of a video item.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known processing state.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusDone || s == StatusFailed
}

// Item is one media file in a gallery.
type Item struct {
	Stored   string          `json:"stored"`
	Batch    int64           `json:"batch"`
	Seq      int             `json:"seq"`
	Type     mediatypes.Kind `json:"type"`
	Status   Status          `json:"status,omitempty"`
	Rotation *int            `json:"rotation,omitempty"`
}

// Catalog is the per-gallery document stored as gallery.json.
// Field order here is the key order on disk.
type Catalog struct {
	Title     string `json:"title"`
	BgColor   string `json:"bg_color"`
	TextColor string `json:"text_color"`
	PIN       string `json:"pin,omitempty"`
	Items     []Item `json:"items"`
}

// New returns an empty catalog with the given metadata, filling defaults for
// blank values.
func New(id, title, bg, text string) *Catalog {
	c := &Catalog{Title: title, BgColor: bg, TextColor: text}
	c.normalize(id)
	return c
}

// Placeholder is the catalog served in place of an unparsable document.
func Placeholder(id string) *Catalog {
	return New(id, "", "", "")
}

// Index returns the position of the item with the given stored name, or -1.
func (c *Catalog) Index(stored string) int {
	for i := range c.Items {
		if c.Items[i].Stored == stored {
			return i
		}
	}
	return -1
}

// Locked reports whether a PIN is set.
func (c *Catalog) Locked() bool {
	return c.PIN != ""
}

// normalize applies documented defaults to absent fields and drops values
// that cannot be valid.
func (c *Catalog) normalize(id string) {
	if c.Title == "" {
		c.Title = id
	}
	if c.BgColor == "" {
		c.BgColor = DefaultBackground
	}
	if c.TextColor == "" {
		c.TextColor = DefaultText
	}

	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if !mediastore.ValidStoredName(it.Stored) {
			logging.Warn("Catalog %s: dropping item with invalid stored name %q", id, it.Stored)
			continue
		}
		if !it.Type.Valid() {
			kind, ok := mediatypes.KindOf(it.Stored)
			if !ok {
				kind = mediatypes.KindImage
			}
			it.Type = kind
		}
		if it.Status != "" && !it.Status.Valid() {
			it.Status = ""
		}
		items = append(items, it)
	}
	c.Items = items
}

// Counts summarizes a catalog for metrics and listings.
type Counts struct {
	Images  int
	Videos  int
	Pending int
	Done    int
	Failed  int
}

// Count tallies items by kind and processing state.
func (c *Catalog) Count() Counts {
	var n Counts
	for _, it := range c.Items {
		switch it.Type {
		case mediatypes.KindVideo:
			n.Videos++
		default:
			n.Images++
		}
		switch it.Status {
		case StatusPending:
			n.Pending++
		case StatusDone:
			n.Done++
		case StatusFailed:
			n.Failed++
		}
	}
	return n
}
