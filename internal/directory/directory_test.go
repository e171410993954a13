package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
)

func newTestDirectory(t *testing.T, template string) (*Directory, *catalog.Repository, *mediastore.Store) {
	t.Helper()
	store := mediastore.New(t.TempDir())
	repo := catalog.NewRepository(store)
	return New(repo, template), repo, store
}

func TestListEmpty(t *testing.T) {
	d, _, _ := newTestDirectory(t, "")

	entries, err := d.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListCorruptFileIsEmpty(t *testing.T) {
	d, _, store := newTestDirectory(t, "")
	require.NoError(t, os.WriteFile(store.DirectoryPath(), []byte("[[["), 0o644))

	entries, err := d.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteQuarantinesCorruptFile(t *testing.T) {
	d, _, store := newTestDirectory(t, "")
	corrupt := []byte(`{"users":[{"username":"bob"`)
	require.NoError(t, os.WriteFile(store.DirectoryPath(), corrupt, 0o644))

	// Reads leave the file alone.
	_, err := d.List()
	require.NoError(t, err)
	require.FileExists(t, store.DirectoryPath())

	_, err = d.EnsureExists(Entry{ID: "alice"})
	require.NoError(t, err)

	matches, err := filepath.Glob(store.DirectoryPath() + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, corrupt, kept)

	entries, err := d.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].ID)
}

func TestEnsureExistsCreatesLayout(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "gallery.html")
	require.NoError(t, os.WriteFile(tmpl, []byte("<html>gallery</html>"), 0o644))
	d, repo, store := newTestDirectory(t, tmpl)

	created, err := d.EnsureExists(Entry{ID: "alice", Title: "Alice", BgColor: "#000000", TextColor: "#ffffff"})
	require.NoError(t, err)
	require.True(t, created)

	require.DirExists(t, store.MediaDir("alice"))
	require.DirExists(t, store.ThumbDir("alice"))
	page, err := os.ReadFile(store.IndexPath("alice"))
	require.NoError(t, err)
	require.Equal(t, "<html>gallery</html>", string(page))

	c, err := repo.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", c.Title)
	require.Equal(t, "#000000", c.BgColor)

	entries, err := d.List()
	require.NoError(t, err)
	require.Equal(t, []Entry{{ID: "alice", Title: "Alice", BgColor: "#000000", TextColor: "#ffffff"}}, entries)
}

func TestEnsureExistsIsIdempotent(t *testing.T) {
	d, repo, _ := newTestDirectory(t, "")

	_, err := d.EnsureExists(Entry{ID: "alice", Title: "First"})
	require.NoError(t, err)
	require.NoError(t, repo.AppendItem("alice", catalog.Item{Stored: "1_a.jpg", Type: mediatypes.KindImage}))

	created, err := d.EnsureExists(Entry{ID: "alice", Title: "Second", BgColor: "#123456"})
	require.NoError(t, err)
	require.False(t, created)

	entries, err := d.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "First", entries[0].Title)

	c, err := repo.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "First", c.Title)
	require.Len(t, c.Items, 1)
}

func TestEnsureExistsDefaultsTitleToID(t *testing.T) {
	d, _, _ := newTestDirectory(t, "")

	_, err := d.EnsureExists(Entry{ID: "bob"})
	require.NoError(t, err)

	e, ok := d.Get("bob")
	require.True(t, ok)
	require.Equal(t, "bob", e.Title)
	require.Equal(t, catalog.DefaultBackground, e.BgColor)
	require.Equal(t, catalog.DefaultText, e.TextColor)
}

func TestEnsureExistsValidation(t *testing.T) {
	d, _, _ := newTestDirectory(t, "")

	tests := []Entry{
		{ID: ""},
		{ID: "../x"},
		{ID: "ok", BgColor: "red; background:url(x)"},
	}
	for _, e := range tests {
		_, err := d.EnsureExists(e)
		require.ErrorIs(t, err, catalog.ErrValidation, "entry %+v", e)
	}

	entries, err := d.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreateRejectsExisting(t *testing.T) {
	d, _, _ := newTestDirectory(t, "")

	require.NoError(t, d.Create(Entry{ID: "alice"}))
	require.ErrorIs(t, d.Create(Entry{ID: "alice"}), catalog.ErrAlreadyExists)
}

func TestCreateRejectsCatalogWithoutEntry(t *testing.T) {
	d, repo, _ := newTestDirectory(t, "")
	_, err := repo.Create("stray", catalog.New("stray", "", "", ""))
	require.NoError(t, err)

	require.ErrorIs(t, d.Create(Entry{ID: "stray"}), catalog.ErrAlreadyExists)
}

func TestUpdateChangesCatalogAndEntry(t *testing.T) {
	d, repo, _ := newTestDirectory(t, "")
	require.NoError(t, d.Create(Entry{ID: "alice", Title: "Old", BgColor: "#111"}))

	require.NoError(t, d.Update(Entry{ID: "alice", Title: "New", TextColor: "#eee"}))

	c, err := repo.Load("alice")
	require.NoError(t, err)
	require.Equal(t, "New", c.Title)
	require.Equal(t, "#111", c.BgColor)
	require.Equal(t, "#eee", c.TextColor)

	e, ok := d.Get("alice")
	require.True(t, ok)
	require.Equal(t, "New", e.Title)
	require.Equal(t, "#111", e.BgColor)
	require.Equal(t, "#eee", e.TextColor)
}

func TestUpdateMissingGallery(t *testing.T) {
	d, _, _ := newTestDirectory(t, "")
	require.ErrorIs(t, d.Update(Entry{ID: "ghost", Title: "x"}), catalog.ErrNotFound)
	require.ErrorIs(t, d.Update(Entry{ID: "alice", BgColor: "red"}), catalog.ErrValidation)
}

func TestRemove(t *testing.T) {
	d, _, store := newTestDirectory(t, "")
	require.NoError(t, d.Create(Entry{ID: "alice"}))
	require.NoError(t, d.Create(Entry{ID: "bob"}))

	require.NoError(t, d.Remove("alice"))

	require.NoDirExists(t, store.GalleryDir("alice"))
	entries, err := d.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "bob", entries[0].ID)

	require.ErrorIs(t, d.Remove("alice"), catalog.ErrNotFound)
	require.ErrorIs(t, d.Remove("never"), catalog.ErrNotFound)
}

func TestRemoveEntryWithoutLayout(t *testing.T) {
	d, _, store := newTestDirectory(t, "")
	require.NoError(t, d.Create(Entry{ID: "alice"}))
	require.NoError(t, os.RemoveAll(store.GalleryDir("alice")))

	require.NoError(t, d.Remove("alice"))
	_, ok := d.Get("alice")
	require.False(t, ok)
}

func TestGetStats(t *testing.T) {
	d, repo, _ := newTestDirectory(t, "")
	require.NoError(t, d.Create(Entry{ID: "alice"}))
	require.NoError(t, d.Create(Entry{ID: "bob"}))
	require.NoError(t, repo.AppendItem("alice", catalog.Item{Stored: "a.jpg", Type: mediatypes.KindImage}))
	require.NoError(t, repo.AppendItem("bob", catalog.Item{Stored: "b.mov", Type: mediatypes.KindVideo, Status: catalog.StatusPending}))

	stats := d.GetStats()
	require.Equal(t, 2, stats.TotalGalleries)
	require.Equal(t, 1, stats.TotalImages)
	require.Equal(t, 1, stats.TotalVideos)
	require.Equal(t, 1, stats.PendingVideos)
}
