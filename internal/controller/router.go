package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIdMiddleware)

	r.Post("/api/rooms", c.registerRoom)
	r.Get("/api/rooms/{room-key}", c.resolveRoom)
	r.HandleFunc("/ws/{room-key}", c.serveRoom)

	return r
}
