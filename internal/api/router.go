// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all HTTP routes. corsOrigins lists the origins
// allowed to call the API cross-origin; the service is consumed from
// browser overlays on other origins.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order.
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300, // seconds
	}))
	r.Use(Instrument())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/pokemon/{id}", h.GetPokemon)
		r.Get("/pokemons", h.GetUserPokemons)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
