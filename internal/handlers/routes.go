package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes adds the probe, API and gallery routes to r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/galleries", h.ListGalleries).Methods(http.MethodGet)
	api.HandleFunc("/galleries", h.CreateGallery).Methods(http.MethodPost)
	api.HandleFunc("/create", h.CreateGallery).Methods(http.MethodPost)
	api.HandleFunc("/galleries/{id}", h.GetGallery).Methods(http.MethodGet)
	api.HandleFunc("/galleries/{id}", h.UpdateGallery).Methods(http.MethodPut)
	api.HandleFunc("/galleries/{id}", h.DeleteGallery).Methods(http.MethodDelete)
	api.HandleFunc("/delete/{id}", h.DeleteGallery).Methods(http.MethodDelete)
	api.HandleFunc("/upload/{id}", h.Upload).Methods(http.MethodPost)
	api.HandleFunc("/galleries/{id}/items/{stored}", h.DeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/galleries/{id}/order", h.ReorderItems).Methods(http.MethodPut)
	api.HandleFunc("/galleries/{id}/pin", h.SetPIN).Methods(http.MethodPut)
	api.HandleFunc("/galleries/{id}/unlock", h.Unlock).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{job:[0-9]+}", h.GetJob).Methods(http.MethodGet)

	g := r.PathPrefix("/galleries/{id}").Subrouter()
	g.HandleFunc("", h.RedirectGalleryPage).Methods(http.MethodGet, http.MethodHead)
	g.HandleFunc("/", h.ServeGalleryPage).Methods(http.MethodGet, http.MethodHead)
	g.HandleFunc("/gallery.json", h.ServeGalleryJSON).Methods(http.MethodGet)
	g.HandleFunc("/media/{name}", h.ServeMedia).Methods(http.MethodGet, http.MethodHead)
	g.HandleFunc("/thumbs/{name}", h.ServeThumbnail).Methods(http.MethodGet, http.MethodHead)
}
