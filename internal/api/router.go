package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Navigation.
	r.Get("/state", h.State)
	r.Put("/index", h.SetIndex)
	r.Post("/next", h.Next)
	r.Post("/prev", h.Prev)
	r.Post("/search", h.Search)
	r.Post("/refresh", h.Refresh)
	r.Put("/prefetch", h.SetPrefetch)

	// Sources.
	r.Get("/sources", h.ListSources)
	r.Post("/sources", h.CreateSource)
	r.Put("/sources/{name}", h.UpdateSource)
	r.Delete("/sources/{name}", h.DeleteSource)

	// Presentation.
	r.Get("/layers", h.ListLayers)
	r.Put("/layers/options", h.SetLayerOptions)
	r.Get("/layers/{source}/slice.png", h.Slice)
	r.Put("/layers/{source}/properties", h.SetLayerProperties)

	r.Get("/project", h.Project)

	return r
}
