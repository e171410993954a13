package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

// DeleteItem removes one media file and its catalog entry.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, stored := vars["id"], vars["stored"]

	if err := h.repo.DeleteItem(id, stored); err != nil {
		writeError(w, "delete item", err)
		return
	}

	logging.Info("Deleted %s from gallery %s", stored, id)
	writeSuccess(w)
}

// ReorderItems replaces the item order. The body is the new list:
// [{"stored": "...", "rotation": 90}, ...].
func (h *Handlers) ReorderItems(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var order []catalog.OrderEntry
	if err := decodeJSON(r, &order); err != nil {
		writeError(w, "reorder", err)
		return
	}

	c, err := h.repo.Reorder(id, order)
	if err != nil {
		writeError(w, "reorder", err)
		return
	}

	writeJSONStatus(w, http.StatusOK, newGalleryView(id, c, true))
}
