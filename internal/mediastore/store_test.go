package mediastore

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidGalleryID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"alice", true},
		{"Team_2024-trip", true},
		{"", false},
		{"../etc", false},
		{"a/b", false},
		{"with space", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			require.Equal(t, tt.want, ValidGalleryID(tt.id))
		})
	}
}

func TestValidStoredName(t *testing.T) {
	require.True(t, ValidStoredName("1700000000_abc.jpg"))
	require.False(t, ValidStoredName(""))
	require.False(t, ValidStoredName(".."))
	require.False(t, ValidStoredName("../gallery.json"))
	require.False(t, ValidStoredName(`..\gallery.json`))
	require.False(t, ValidStoredName("media/a.jpg"))
}

func TestNewStoredName(t *testing.T) {
	pattern := regexp.MustCompile(`^\d+_[0-9a-f]{32}\.mov$`)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		name := NewStoredName(".MOV")
		require.Regexp(t, pattern, name)
		require.False(t, seen[name], "duplicate stored name %s", name)
		seen[name] = true
	}
}

func TestLayoutPaths(t *testing.T) {
	s := New("/data")

	require.Equal(t, "/data/galleries.json", s.DirectoryPath())
	require.Equal(t, "/data/transcode.db", s.JournalPath())
	require.Equal(t, "/data/galleries/alice", s.GalleryDir("alice"))
	require.Equal(t, "/data/galleries/alice/gallery.json", s.CatalogPath("alice"))
	require.Equal(t, "/data/galleries/alice/index.html", s.IndexPath("alice"))
	require.Equal(t, "/data/galleries/alice/media/x.jpg", s.MediaPath("alice", "x.jpg"))
	require.Equal(t, "/data/galleries/alice/thumbs/x.jpg", s.ThumbPath("alice", "x.png"))
}

func TestPutExistsRemove(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureLayout("alice"))
	require.True(t, s.GalleryExists("alice"))

	n, err := s.Put("alice", "1_a.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
	require.True(t, s.Exists("alice", "1_a.jpg"))

	require.NoError(t, os.WriteFile(s.ThumbPath("alice", "1_a.jpg"), []byte("t"), 0o644))

	require.NoError(t, s.Remove("alice", "1_a.jpg"))
	require.False(t, s.Exists("alice", "1_a.jpg"))
	_, err = os.Stat(s.ThumbPath("alice", "1_a.jpg"))
	require.True(t, os.IsNotExist(err), "thumbnail should be removed with the media file")

	err = s.Remove("alice", "1_a.jpg")
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPutRejectsTraversal(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureLayout("alice"))

	_, err := s.Put("alice", "../gallery.json", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Put("../alice", "a.jpg", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestMoveIn(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureLayout("bob"))

	src := filepath.Join(t.TempDir(), "upload-123")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o600))

	require.NoError(t, s.MoveIn("bob", "1_x.mov", src))
	require.True(t, s.Exists("bob", "1_x.mov"))
	_, err := os.Stat(src)
	require.True(t, os.IsNotExist(err))
}

func TestRemoveGallery(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureLayout("carol"))
	_, err := s.Put("carol", "a.jpg", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveGallery("carol"))
	require.False(t, s.GalleryExists("carol"))
	require.ErrorIs(t, s.RemoveGallery(".."), ErrInvalidID)
}
