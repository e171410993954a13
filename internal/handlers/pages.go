package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
	"github.com/darbyjahn/smallphot0-backend/internal/mediatypes"
)

// Stored names never change content, so media can be cached indefinitely.
const immutableCache = "public, max-age=31536000, immutable"

// RedirectGalleryPage adds the trailing slash so relative links in the page
// resolve under the gallery.
func (h *Handlers) RedirectGalleryPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
}

// ServeGalleryPage serves the gallery's index.html.
func (h *Handlers) ServeGalleryPage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !mediastore.ValidGalleryID(id) {
		http.Error(w, "Gallery not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	serveFile(w, r, h.store.IndexPath(id), "text/html; charset=utf-8", "Gallery not found")
}

// ServeGalleryJSON serves the public catalog view at the path the gallery
// page fetches.
func (h *Handlers) ServeGalleryJSON(w http.ResponseWriter, r *http.Request) {
	h.GetGallery(w, r)
}

// ServeMedia serves a stored media file with range support.
func (h *Handlers) ServeMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, name := vars["id"], vars["name"]
	if !mediastore.ValidGalleryID(id) || !mediastore.ValidStoredName(name) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", immutableCache)
	serveFile(w, r, h.store.MediaPath(id, name), mediatypes.GetMimeType(mediatypes.Ext(name)), "File not found")
}

// ServeThumbnail serves the preview for a stored image, falling back to the
// image itself when no thumbnail was rendered.
func (h *Handlers) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, name := vars["id"], vars["name"]
	if !mediastore.ValidGalleryID(id) || !mediastore.ValidStoredName(name) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	thumb := h.store.ThumbPath(id, name)
	if filesystem.Exists(thumb) {
		w.Header().Set("Cache-Control", immutableCache)
		serveFile(w, r, thumb, "image/jpeg", "File not found")
		return
	}

	// Not cached as immutable: a thumbnail may appear later.
	w.Header().Set("Cache-Control", "public, max-age=300")
	serveFile(w, r, h.store.MediaPath(id, name), mediatypes.GetMimeType(mediatypes.Ext(name)), "File not found")
}

func serveFile(w http.ResponseWriter, r *http.Request, path, contentType, notFound string) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.Header().Del("Cache-Control")
			http.Error(w, notFound, http.StatusNotFound)
			return
		}
		logging.Error("Failed to open %s: %v", path, err)
		http.Error(w, "Failed to access file", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Debug("failed to close %s: %v", path, err)
		}
	}()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, notFound, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
