// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package api provides the HTTP surface: pokemon lookup, the combined
// user dex endpoint, health, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pokedexcache/pokedexcache/internal/dexcache"
	"github.com/pokedexcache/pokedexcache/internal/models"
	"github.com/pokedexcache/pokedexcache/internal/pokeapi"
)

// DexService is the service surface the handlers consume.
type DexService interface {
	GetPokemon(ctx context.Context, id int) (*models.Pokemon, error)
	GetUserPokemons(ctx context.Context, canal, usuario string, refresh bool) ([]models.UserPokemon, error)
}

// Pinger verifies store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler bundles the HTTP handlers and their collaborators.
type Handler struct {
	svc   DexService
	store Pinger
}

// NewHandler builds the handler set.
func NewHandler(svc DexService, store Pinger) *Handler {
	return &Handler{svc: svc, store: store}
}

// GetPokemon serves one pokemon record.
//
// Method: GET
// Path: /api/v1/pokemon/{id}
//
// Responses:
//   - 200: record served (from cache or freshly fetched)
//   - 400: id missing, non-numeric, or not positive
//   - 404: no such pokemon upstream
//   - 502: remote fetch failed
//   - 503: remote client unavailable
func (h *Handler) GetPokemon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Pokemon id must be a positive integer", nil)
		return
	}

	rec, err := h.svc.GetPokemon(r.Context(), id)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, rec)
	case errors.Is(err, dexcache.ErrInvalidID):
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Pokemon id must be a positive integer", err)
	case errors.Is(err, pokeapi.ErrNotFound):
		respondError(w, http.StatusNotFound, "POKEMON_NOT_FOUND", "No pokemon exists with this id", nil)
	case errors.Is(err, dexcache.ErrClientUnavailable):
		respondError(w, http.StatusServiceUnavailable, "CLIENT_UNAVAILABLE", "Remote data source client is unavailable", err)
	default:
		respondError(w, http.StatusBadGateway, "FETCH_FAILED", "Failed to fetch pokemon details", err)
	}
}

// GetUserPokemons serves a user's dex list joined with pokemon
// details.
//
// Method: GET
// Path: /api/v1/pokemons?canal=&usuario=&refresh=
//
// Responses:
//   - 200: resolved list (possibly empty)
//   - 400: canal or usuario missing
//   - 502: scrape failed
//   - 503: remote client unavailable
func (h *Handler) GetUserPokemons(w http.ResponseWriter, r *http.Request) {
	canal := r.URL.Query().Get("canal")
	usuario := r.URL.Query().Get("usuario")
	if canal == "" || usuario == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "Both 'canal' and 'usuario' are required", nil)
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	result, err := h.svc.GetUserPokemons(r.Context(), canal, usuario, refresh)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, dexcache.ErrClientUnavailable):
		respondError(w, http.StatusServiceUnavailable, "CLIENT_UNAVAILABLE", "Remote data source client is unavailable", err)
	default:
		respondError(w, http.StatusBadGateway, "DEX_FETCH_FAILED", "Failed to resolve the user's dex list", err)
	}
}

// Health reports liveness and store connectivity.
//
// Method: GET
// Path: /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK
	if h.store == nil {
		status["database"] = "unconfigured"
	} else if err := h.store.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, status)
}
