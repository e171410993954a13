package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/darbyjahn/smallphot0-backend/internal/access"
	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/directory"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

// CreateRequest is the body of a gallery create call.
type CreateRequest struct {
	Username string `json:"username"`
	Title    string `json:"title"`
	Bg       string `json:"bg"`
	Text     string `json:"text"`
}

// UpdateRequest changes gallery metadata. Empty fields are left unchanged.
type UpdateRequest struct {
	Title string `json:"title"`
	Bg    string `json:"bg"`
	Text  string `json:"text"`
}

// PINRequest sets or clears a gallery PIN. Current is required when the
// gallery already has one.
type PINRequest struct {
	PIN     string `json:"pin"`
	Current string `json:"current,omitempty"`
}

// UnlockRequest carries a PIN attempt.
type UnlockRequest struct {
	PIN string `json:"pin"`
}

// GalleryView is the public form of a catalog. The PIN is never included;
// items are withheld while the gallery is locked.
type GalleryView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	BgColor   string         `json:"bg_color"`
	TextColor string         `json:"text_color"`
	Locked    bool           `json:"locked"`
	Items     []catalog.Item `json:"items"`
}

func newGalleryView(id string, c *catalog.Catalog, unlocked bool) GalleryView {
	v := GalleryView{
		ID:        id,
		Title:     c.Title,
		BgColor:   c.BgColor,
		TextColor: c.TextColor,
		Locked:    c.Locked(),
		Items:     []catalog.Item{},
	}
	if !v.Locked || unlocked {
		v.Items = c.Items
	}
	return v
}

// ListGalleries returns the gallery directory.
func (h *Handlers) ListGalleries(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.galleries.List()
	if err != nil {
		writeError(w, "list galleries", err)
		return
	}
	if entries == nil {
		entries = []directory.Entry{}
	}
	writeJSONStatus(w, http.StatusOK, entries)
}

// CreateGallery creates a gallery. Existing ids are rejected.
func (h *Handlers) CreateGallery(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "create gallery", err)
		return
	}
	if req.Username == "" || req.Title == "" {
		writeJSONError(w, "Missing fields", http.StatusBadRequest)
		return
	}

	err := h.galleries.Create(directory.Entry{
		ID:        req.Username,
		Title:     req.Title,
		BgColor:   req.Bg,
		TextColor: req.Text,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrAlreadyExists) {
			writeJSONError(w, "Gallery already exists", http.StatusConflict)
			return
		}
		writeError(w, "create gallery", err)
		return
	}

	writeSuccess(w)
}

// DeleteGallery removes a gallery and everything in it.
func (h *Handlers) DeleteGallery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.galleries.Remove(id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeJSONError(w, "Gallery not found", http.StatusNotFound)
			return
		}
		writeError(w, "delete gallery", err)
		return
	}

	writeSuccess(w)
}

// GetGallery returns the public view of a catalog.
func (h *Handlers) GetGallery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, ok := h.loadCatalog(w, id)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, newGalleryView(id, c, false))
}

// UpdateGallery changes title and colors.
func (h *Handlers) UpdateGallery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "update gallery", err)
		return
	}
	err := h.galleries.Update(directory.Entry{ID: id, Title: req.Title, BgColor: req.Bg, TextColor: req.Text})
	if err != nil {
		writeError(w, "update gallery", err)
		return
	}
	writeSuccess(w)
}

// SetPIN sets or clears the gallery PIN.
func (h *Handlers) SetPIN(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req PINRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "set pin", err)
		return
	}

	c, ok := h.loadCatalog(w, id)
	if !ok {
		return
	}
	if c.Locked() {
		if err := h.checkPIN(id, c.PIN, req.Current); err != nil {
			writeError(w, "set pin", err)
			return
		}
	}

	hashed := ""
	if req.PIN != "" {
		var err error
		if hashed, err = access.HashPIN(req.PIN); err != nil {
			writeError(w, "set pin", err)
			return
		}
	}

	if err := h.repo.SetPIN(id, hashed); err != nil {
		writeError(w, "set pin", err)
		return
	}

	if hashed == "" {
		logging.Info("PIN cleared for gallery %s", id)
	} else {
		logging.Info("PIN set for gallery %s", id)
	}
	writeSuccess(w)
}

// Unlock verifies a PIN and returns the full gallery view.
func (h *Handlers) Unlock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "unlock", err)
		return
	}

	c, ok := h.loadCatalog(w, id)
	if !ok {
		return
	}
	if err := h.checkPIN(id, c.PIN, req.PIN); err != nil {
		writeError(w, "unlock", err)
		return
	}

	writeJSONStatus(w, http.StatusOK, newGalleryView(id, c, true))
}

// checkPIN applies the per-gallery rate limit before comparing.
func (h *Handlers) checkPIN(id, stored, pin string) error {
	if !h.limiter.Allow(id) {
		metrics.PINAttemptsTotal.WithLabelValues("limited").Inc()
		logging.Warn("PIN attempts for %s are rate limited", id)
		return access.ErrRateLimited
	}
	if err := access.VerifyPIN(stored, pin); err != nil {
		metrics.PINAttemptsTotal.WithLabelValues("denied").Inc()
		return err
	}
	metrics.PINAttemptsTotal.WithLabelValues("ok").Inc()
	return nil
}

// loadCatalog writes the error response itself and reports whether the
// catalog can be used. A corrupt catalog is served as its placeholder.
func (h *Handlers) loadCatalog(w http.ResponseWriter, id string) (*catalog.Catalog, bool) {
	c, err := h.repo.Load(id)
	switch {
	case err == nil:
		return c, true
	case errors.Is(err, catalog.ErrCorrupt):
		logging.Warn("Serving placeholder for %s: %v", id, err)
		return c, true
	case errors.Is(err, catalog.ErrNotFound):
		writeJSONError(w, "Gallery not found", http.StatusNotFound)
		return nil, false
	default:
		writeError(w, fmt.Sprintf("load gallery %s", id), err)
		return nil, false
	}
}
