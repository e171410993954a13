// Package mediastore owns the on-disk layout under DATA_DIR and the physical
// bytes of every gallery's media files.
package mediastore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

const (
	// DirectoryFile is the gallery directory document at the data root.
	DirectoryFile = "galleries.json"
	// CatalogFile is the per-gallery catalog document.
	CatalogFile = "gallery.json"
	// IndexFile is the gallery page copied from the template.
	IndexFile = "index.html"
	// JournalFile is the transcode job journal database.
	JournalFile = "transcode.db"

	galleriesDir = "galleries"
	mediaDir     = "media"
	thumbsDir    = "thumbs"

	dirPerm  = 0o755
	filePerm = 0o644
)

var (
	// ErrInvalidID is returned for gallery ids that are not filesystem safe.
	ErrInvalidID = errors.New("invalid gallery id")
	// ErrInvalidName is returned for stored names containing path elements.
	ErrInvalidName = errors.New("invalid stored name")
)

var galleryIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidGalleryID reports whether id may be used as a directory name.
func ValidGalleryID(id string) bool {
	return galleryIDPattern.MatchString(id)
}

// ValidStoredName reports whether name is a bare file name that cannot
// escape the media directory.
func ValidStoredName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

// NewStoredName returns a collision-resistant name for an upload:
// a nanosecond timestamp, a random token and the original extension.
// The client's file name is never reused.
func NewStoredName(ext string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + token + strings.ToLower(ext)
}

// Store resolves paths under a data directory and moves media bytes in and
// out of gallery media directories.
type Store struct {
	root string
}

// New creates a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{root: dataDir}
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// DirectoryPath returns the path of galleries.json.
func (s *Store) DirectoryPath() string { return filepath.Join(s.root, DirectoryFile) }

// JournalPath returns the path of the transcode journal database.
func (s *Store) JournalPath() string { return filepath.Join(s.root, JournalFile) }

// GalleriesDir returns the parent directory of every gallery.
func (s *Store) GalleriesDir() string { return filepath.Join(s.root, galleriesDir) }

// GalleryDir returns the directory holding one gallery.
func (s *Store) GalleryDir(id string) string { return filepath.Join(s.root, galleriesDir, id) }

// CatalogPath returns the path of a gallery's catalog document.
func (s *Store) CatalogPath(id string) string { return filepath.Join(s.GalleryDir(id), CatalogFile) }

// IndexPath returns the path of a gallery's page.
func (s *Store) IndexPath(id string) string { return filepath.Join(s.GalleryDir(id), IndexFile) }

// MediaDir returns a gallery's media directory.
func (s *Store) MediaDir(id string) string { return filepath.Join(s.GalleryDir(id), mediaDir) }

// ThumbDir returns a gallery's thumbnail directory.
func (s *Store) ThumbDir(id string) string { return filepath.Join(s.GalleryDir(id), thumbsDir) }

// MediaPath returns the path of a stored media file.
func (s *Store) MediaPath(id, name string) string { return filepath.Join(s.MediaDir(id), name) }

// ThumbPath returns the thumbnail path for a stored media file.
func (s *Store) ThumbPath(id, name string) string {
	return filepath.Join(s.ThumbDir(id), strings.TrimSuffix(name, filepath.Ext(name))+".jpg")
}

// EnsureLayout creates the gallery directory with its media and thumbs
// subdirectories. Existing directories are left alone.
func (s *Store) EnsureLayout(id string) error {
	if !ValidGalleryID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, dir := range []string{s.MediaDir(id), s.ThumbDir(id)} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// GalleryExists reports whether the gallery directory is present.
func (s *Store) GalleryExists(id string) bool {
	if !ValidGalleryID(id) {
		return false
	}
	info, err := filesystem.StatWithRetry(s.GalleryDir(id), filesystem.DefaultRetryConfig())
	return err == nil && info.IsDir()
}

// Put streams r into the gallery's media directory under name. The file
// appears only once fully written.
func (s *Store) Put(id, name string, r io.Reader) (int64, error) {
	if err := s.checkPath(id, name); err != nil {
		return 0, err
	}
	n, err := filesystem.WriteReaderAtomic(s.MediaPath(id, name), r, filePerm)
	if err != nil {
		return 0, fmt.Errorf("store %s/%s: %w", id, name, err)
	}
	return n, nil
}

// MoveIn moves an existing file (for example a spooled multipart upload)
// into the gallery's media directory under name.
func (s *Store) MoveIn(id, name, src string) error {
	if err := s.checkPath(id, name); err != nil {
		return err
	}
	if err := filesystem.MoveFile(src, s.MediaPath(id, name)); err != nil {
		return fmt.Errorf("move %s into %s/%s: %w", src, id, name, err)
	}
	return nil
}

// Exists reports whether a stored media file is present.
func (s *Store) Exists(id, name string) bool {
	if s.checkPath(id, name) != nil {
		return false
	}
	_, err := filesystem.StatWithRetry(s.MediaPath(id, name), filesystem.DefaultRetryConfig())
	return err == nil
}

// Remove deletes a stored media file and its thumbnail. A missing media
// file is reported as os.ErrNotExist.
func (s *Store) Remove(id, name string) error {
	if err := s.checkPath(id, name); err != nil {
		return err
	}
	if err := os.Remove(s.MediaPath(id, name)); err != nil {
		return err
	}
	s.RemoveThumb(id, name)
	return nil
}

// RemoveThumb deletes the thumbnail for name if there is one.
func (s *Store) RemoveThumb(id, name string) {
	if err := os.Remove(s.ThumbPath(id, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Failed to remove thumbnail for %s/%s: %v", id, name, err)
	}
}

// RemoveGallery deletes the entire gallery subtree.
func (s *Store) RemoveGallery(id string) error {
	if !ValidGalleryID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return os.RemoveAll(s.GalleryDir(id))
}

func (s *Store) checkPath(id, name string) error {
	if !ValidGalleryID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if !ValidStoredName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
