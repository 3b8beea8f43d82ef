// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package api provides the daemon's admin HTTP surface using the Chi
// router. It is intended to listen on localhost only and carries no
// authentication.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the admin API routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync", h.TriggerSync)
		r.Post("/sync/platforms", h.TriggerPlatformsSync)
		r.Post("/sync/platform/{id}", h.TriggerPlatformSync)
		r.Post("/sync/collections", h.TriggerCollectionsSync)
		r.Post("/sync/favorites", h.TriggerFavoritesSync)
		r.Get("/sync/progress", h.SyncProgress)

		r.Get("/status", h.Status)
		r.Get("/connection", h.Connection)
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.DisconnectHandler)

		r.Get("/platforms", h.Platforms)
		r.Patch("/platforms/{id}", h.PatchPlatform)
		r.Get("/games", h.Games)
		r.Get("/orphaned-files", h.OrphanedFiles)
	})

	return r
}
