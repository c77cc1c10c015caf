package handlers

import "github.com/go-chi/chi/v5"

func RegisterPostRoutes(r chi.Router, h *PostHandler) {
	r.Route("/api/posts", func(r chi.Router) {
		r.Post("/", h.CreatePost)
		r.Get("/", h.ListPosts)
	})
	r.Route("/api/publish", func(r chi.Router) {
		r.Post("/run", h.RunPublish)
		r.Get("/next", h.NextDue)
	})
}
