package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
)

func newTestRepo(t *testing.T) (*Repository, *mediastore.Store) {
	t.Helper()
	store := mediastore.New(t.TempDir())
	return NewRepository(store), store
}

func createGallery(t *testing.T, r *Repository, id string) {
	t.Helper()
	created, err := r.Create(id, New(id, "", "", ""))
	require.NoError(t, err)
	require.True(t, created)
}

func putFile(t *testing.T, s *mediastore.Store, id, name string) {
	t.Helper()
	_, err := s.Put(id, name, strings.NewReader("bytes"))
	require.NoError(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")

	rot := 180
	want := &Catalog{
		Title:     "Alice's trip",
		BgColor:   "#101010",
		TextColor: "#fafafa",
		PIN:       "$2a$10$hash",
		Items: []Item{
			{Stored: "2_b.jpg", Batch: 2, Seq: 0, Type: mediatypes.KindImage},
			{Stored: "1_a.mov", Batch: 1, Seq: 0, Type: mediatypes.KindVideo, Status: StatusPending},
			{Stored: "1_c_web.mp4", Batch: 1, Seq: 1, Type: mediatypes.KindVideo, Status: StatusDone, Rotation: &rot},
		},
	}
	require.NoError(t, r.Save("alice", want))

	got, err := r.Load("alice")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveFormatIsStable(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")

	require.NoError(t, r.Save("alice", &Catalog{
		Title: "A", BgColor: "#fff", TextColor: "#000",
		Items: []Item{{Stored: "1_a.jpg", Batch: 1, Seq: 0, Type: mediatypes.KindImage}},
	}))

	data, err := os.ReadFile(s.CatalogPath("alice"))
	require.NoError(t, err)

	want := `{
  "title": "A",
  "bg_color": "#fff",
  "text_color": "#000",
  "items": [
    {
      "stored": "1_a.jpg",
      "batch": 1,
      "seq": 0,
      "type": "image"
    }
  ]
}
`
	require.Equal(t, want, string(data))
}

func TestLoadMissingGallery(t *testing.T) {
	r, _ := newTestRepo(t)

	_, err := r.Load("nobody")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Load("../etc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorruptReturnsPlaceholder(t *testing.T) {
	r, s := newTestRepo(t)
	require.NoError(t, s.EnsureLayout("broken"))
	require.NoError(t, os.WriteFile(s.CatalogPath("broken"), []byte("{not json"), 0o644))

	c, err := r.Load("broken")
	require.ErrorIs(t, err, ErrCorrupt)
	require.NotNil(t, c)
	require.Equal(t, "broken", c.Title)
	require.Empty(t, c.Items)
}

func TestUpdateQuarantinesCorruptCatalog(t *testing.T) {
	r, s := newTestRepo(t)
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	require.NoError(t, s.EnsureLayout("broken"))
	require.NoError(t, os.WriteFile(s.CatalogPath("broken"), []byte("{not json"), 0o644))

	require.NoError(t, r.AppendItem("broken", Item{Stored: "1_a.jpg", Type: mediatypes.KindImage}))

	quarantined := s.CatalogPath("broken") + ".corrupt.1700000000"
	data, err := os.ReadFile(quarantined)
	require.NoError(t, err)
	require.Equal(t, "{not json", string(data))

	c, err := r.Load("broken")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
}

func TestCreateIsIdempotent(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "1_a.jpg", Type: mediatypes.KindImage}))

	created, err := r.Create("alice", New("alice", "Other", "#000", "#fff"))
	require.NoError(t, err)
	require.False(t, created)

	c, err := r.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "alice", c.Title, "existing metadata must not be overwritten")
	require.Len(t, c.Items, 1, "existing items must not be overwritten")
}

func TestUpdateErrorWritesNothing(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")

	boom := errors.New("boom")
	err := r.Update("alice", func(c *Catalog) error {
		c.Title = "changed"
		return boom
	})
	require.ErrorIs(t, err, boom)

	c, err := r.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "alice", c.Title)
}

func TestAppendItemConcurrentWritersLoseNothing(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")

	const writers = 40
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.AppendItem("alice", Item{
				Stored: fmt.Sprintf("%d_x.jpg", i),
				Batch:  int64(i),
				Type:   mediatypes.KindImage,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := r.Load("alice")
	require.NoError(t, err)
	require.Len(t, c.Items, writers)

	require.Empty(t, r.locks, "lock entries should be released")
}

func TestUpdateHoldsLaterWritersUntilSaved(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")

	loaded := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- r.Update("alice", func(c *Catalog) error {
			close(loaded)
			<-release
			c.Items = append(c.Items, Item{Stored: "a.jpg", Type: mediatypes.KindImage})
			return nil
		})
	}()
	<-loaded

	// The first writer holds a loaded catalog; the second starts its own
	// load-mutate-save now.
	second := make(chan error, 1)
	go func() {
		second <- r.AppendItem("alice", Item{Stored: "b.jpg", Type: mediatypes.KindImage})
	}()
	select {
	case err := <-second:
		t.Fatalf("second writer finished while the first held the catalog: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	c, err := r.Load("alice")
	require.NoError(t, err)
	require.Equal(t, []string{"a.jpg", "b.jpg"}, storedNames(c))
}

func TestAppendItemRejectsDuplicateStoredName(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")

	item := Item{Stored: "1_a.jpg", Type: mediatypes.KindImage}
	require.NoError(t, r.AppendItem("alice", item))
	require.ErrorIs(t, r.AppendItem("alice", item), ErrAlreadyExists)
}

func TestApplyTranscode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStored string
		wantStatus Status
	}{
		{name: "success", err: nil, wantStored: "1_clip_web.mp4", wantStatus: StatusDone},
		{name: "failure", err: errors.New("exit status 1"), wantStored: "1_clip.mov", wantStatus: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRepo(t)
			createGallery(t, r, "alice")
			require.NoError(t, r.AppendItem("alice", Item{Stored: "1_clip.mov", Type: mediatypes.KindVideo, Status: StatusPending}))

			applied, err := r.ApplyTranscode("alice", "1_clip.mov", "1_clip_web.mp4", tt.err)
			require.NoError(t, err)
			require.True(t, applied)

			c, err := r.Load("alice")
			require.NoError(t, err)
			require.Len(t, c.Items, 1)
			require.Equal(t, tt.wantStored, c.Items[0].Stored)
			require.Equal(t, tt.wantStatus, c.Items[0].Status)
			require.Equal(t, mediatypes.KindVideo, c.Items[0].Type)
		})
	}
}

func TestApplyTranscodeMissingItemIsNoop(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")
	before, err := os.ReadFile(s.CatalogPath("alice"))
	require.NoError(t, err)

	applied, err := r.ApplyTranscode("alice", "gone.mov", "gone_web.mp4", nil)
	require.NoError(t, err)
	require.False(t, applied)

	after, err := os.ReadFile(s.CatalogPath("alice"))
	require.NoError(t, err)
	require.Equal(t, before, after, "catalog must not be rewritten for a missing item")

	applied, err = r.ApplyTranscode("deleted-gallery", "x.mov", "x_web.mp4", nil)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestDeleteItem(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")
	putFile(t, s, "alice", "1_a.jpg")
	putFile(t, s, "alice", "1_b.jpg")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "1_a.jpg", Type: mediatypes.KindImage}))
	require.NoError(t, r.AppendItem("alice", Item{Stored: "1_b.jpg", Seq: 1, Type: mediatypes.KindImage}))

	require.NoError(t, r.DeleteItem("alice", "1_a.jpg"))

	require.False(t, s.Exists("alice", "1_a.jpg"))
	c, err := r.Load("alice")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	require.Equal(t, "1_b.jpg", c.Items[0].Stored)
}

func TestDeleteItemNotFound(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")
	putFile(t, s, "alice", "orphan.jpg")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "nofile.jpg", Type: mediatypes.KindImage}))

	tests := []struct {
		name    string
		gallery string
		stored  string
	}{
		{"missing gallery", "nobody", "a.jpg"},
		{"missing file", "alice", "nofile.jpg"},
		{"file without entry", "alice", "orphan.jpg"},
		{"traversal", "alice", "../gallery.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.DeleteItem(tt.gallery, tt.stored)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}

	require.True(t, s.Exists("alice", "orphan.jpg"), "file without entry must not be deleted")
	_, err := os.Stat(filepath.Join(s.GalleryDir("alice"), "gallery.json"))
	require.NoError(t, err)
}

func TestReorder(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "a.jpg", Batch: 1, Seq: 0, Type: mediatypes.KindImage}))
	require.NoError(t, r.AppendItem("alice", Item{Stored: "b.jpg", Batch: 1, Seq: 1, Type: mediatypes.KindImage}))

	c, err := r.Reorder("alice", []OrderEntry{{Stored: "b.jpg"}, {Stored: "a.jpg"}})
	require.NoError(t, err)
	require.Equal(t, []string{"b.jpg", "a.jpg"}, storedNames(c))

	loaded, err := r.Load("alice")
	require.NoError(t, err)
	require.Equal(t, []string{"b.jpg", "a.jpg"}, storedNames(loaded))
	require.Equal(t, 1, loaded.Items[0].Seq, "other fields are preserved")
}

func TestReorderRotationAndUnknownNames(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "a.jpg", Type: mediatypes.KindImage}))
	require.NoError(t, r.AppendItem("alice", Item{Stored: "b.jpg", Type: mediatypes.KindImage}))
	require.NoError(t, r.AppendItem("alice", Item{Stored: "c.jpg", Type: mediatypes.KindImage}))

	rot, neg := 450, -90
	c, err := r.Reorder("alice", []OrderEntry{
		{Stored: "ghost.jpg"},
		{Stored: "c.jpg", Rotation: &rot},
		{Stored: "a.jpg", Rotation: &neg},
		{Stored: "c.jpg"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, storedNames(c))
	require.Equal(t, 90, *c.Items[0].Rotation)
	require.Equal(t, 270, *c.Items[1].Rotation)
	require.Nil(t, c.Items[2].Rotation)
}

func TestReorderKeepsItemsAppendedSinceRead(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")
	for _, name := range []string{"a.jpg", "b.jpg"} {
		putFile(t, s, "alice", name)
		require.NoError(t, r.AppendItem("alice", Item{Stored: name, Type: mediatypes.KindImage}))
	}

	// The client read [a, b]; an upload appends c and a video before the
	// reorder arrives.
	putFile(t, s, "alice", "c.jpg")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "c.jpg", Type: mediatypes.KindImage}))
	require.NoError(t, r.AppendItem("alice", Item{Stored: "d.mov", Type: mediatypes.KindVideo, Status: StatusPending}))

	c, err := r.Reorder("alice", []OrderEntry{{Stored: "b.jpg"}, {Stored: "a.jpg"}})
	require.NoError(t, err)
	require.Equal(t, []string{"b.jpg", "a.jpg", "c.jpg", "d.mov"}, storedNames(c))

	loaded, err := r.Load("alice")
	require.NoError(t, err)
	require.Equal(t, storedNames(c), storedNames(loaded))
	require.Equal(t, StatusPending, loaded.Items[3].Status)

	applied, err := r.ApplyTranscode("alice", "d.mov", "d_web.mp4", nil)
	require.NoError(t, err)
	require.True(t, applied, "a pending video survives a reorder that did not name it")
}

func TestHasItem(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")
	require.NoError(t, r.AppendItem("alice", Item{Stored: "a.jpg", Type: mediatypes.KindImage}))

	require.True(t, r.HasItem("alice", "a.jpg"))
	require.False(t, r.HasItem("alice", "b.jpg"))
	require.False(t, r.HasItem("nobody", "a.jpg"))

	require.NoError(t, os.WriteFile(s.CatalogPath("alice"), []byte("{not json"), 0o644))
	require.False(t, r.HasItem("alice", "a.jpg"), "a corrupt catalog lists nothing")
}

func TestReorderMissingGallery(t *testing.T) {
	r, _ := newTestRepo(t)

	_, err := r.Reorder("nobody", []OrderEntry{{Stored: "a.jpg"}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetPINAndMetadata(t *testing.T) {
	r, _ := newTestRepo(t)
	createGallery(t, r, "alice")

	require.NoError(t, r.SetPIN("alice", "hashed"))
	require.NoError(t, r.UpdateMetadata("alice", "Holiday", "", "#333333"))

	c, err := r.Load("alice")
	require.NoError(t, err)
	require.True(t, c.Locked())
	require.Equal(t, "Holiday", c.Title)
	require.Equal(t, DefaultBackground, c.BgColor)
	require.Equal(t, "#333333", c.TextColor)

	require.NoError(t, r.SetPIN("alice", ""))
	c, err = r.Load("alice")
	require.NoError(t, err)
	require.False(t, c.Locked())
}

func TestDeleteGallery(t *testing.T) {
	r, s := newTestRepo(t)
	createGallery(t, r, "alice")
	putFile(t, s, "alice", "a.jpg")

	require.NoError(t, r.Delete("alice"))
	require.False(t, s.GalleryExists("alice"))
	require.ErrorIs(t, r.Delete("alice"), ErrNotFound)
}

func storedNames(c *Catalog) []string {
	names := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		names = append(names, it.Stored)
	}
	return names
}
