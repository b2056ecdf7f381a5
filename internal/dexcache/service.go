// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package dexcache coordinates the cache-then-fetch flow: consult the
// store, fall back to the PokéAPI on a miss or a corrupt row, and
// persist the normalized record without ever surfacing a uniqueness
// violation. It also resolves user dex lists, combining the TTL'd
// list cache with the scraper.
package dexcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pokedexcache/pokedexcache/internal/logging"
	"github.com/pokedexcache/pokedexcache/internal/metrics"
	"github.com/pokedexcache/pokedexcache/internal/models"
	"github.com/pokedexcache/pokedexcache/internal/pokeapi"
	"github.com/pokedexcache/pokedexcache/internal/scrape"
	"github.com/pokedexcache/pokedexcache/internal/store"
)

var (
	// ErrClientUnavailable reports that the PokéAPI client failed its
	// one-time process-wide initialization. The condition is permanent
	// for the process lifetime.
	ErrClientUnavailable = errors.New("dexcache: pokeapi client unavailable")

	// ErrInvalidID reports a non-positive pokemon id.
	ErrInvalidID = errors.New("dexcache: pokemon id must be positive")
)

// Service owns the cache-then-fetch coordination. All methods are safe
// for concurrent use; racing writers for the same id are reconciled by
// the store's insert-or-ignore write, not by in-process locking.
type Service struct {
	store   store.Store
	fetcher pokeapi.Fetcher // nil when client setup failed at startup
	scraper scrape.Scraper
	dexTTL  time.Duration

	now func() time.Time // injectable clock for TTL tests
}

// New builds the service. fetcher may be nil when the PokéAPI client
// could not be constructed; every GetPokemon call then fails with
// ErrClientUnavailable.
func New(st store.Store, fetcher pokeapi.Fetcher, scraper scrape.Scraper, dexTTL time.Duration) *Service {
	return &Service{
		store:   st,
		fetcher: fetcher,
		scraper: scraper,
		dexTTL:  dexTTL,
		now:     time.Now,
	}
}

// GetPokemon returns the record for id, from the cache when a valid
// row exists and from the PokéAPI otherwise. A fetched record is
// persisted best-effort: write failures are logged and counted but the
// record is returned regardless, since the response does not depend on
// the write succeeding.
func (s *Service) GetPokemon(ctx context.Context, id int) (*models.Pokemon, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if s.fetcher == nil {
		return nil, ErrClientUnavailable
	}

	corrupt := false
	rec, err := s.store.GetPokemon(ctx, id)
	switch {
	case err == nil:
		metrics.CacheHits.Inc()
		logging.Debug().Int("id", id).Msg("Pokemon cache hit")
		return rec, nil
	case errors.Is(err, store.ErrNotFound):
		metrics.CacheMisses.Inc()
	case errors.Is(err, store.ErrCorrupt):
		// Treated exactly like a miss; the refetched record repairs
		// the row below.
		corrupt = true
		metrics.CacheCorruptRows.Inc()
		logging.Warn().Int("id", id).Err(err).Msg("Corrupt cache row, refetching")
	default:
		// Store unreachable: skip the cache check and go remote.
		metrics.CacheUnavailable.Inc()
		logging.Warn().Int("id", id).Err(err).Msg("Cache unavailable, fetching without cache")
	}

	rec, err = s.fetcher.FetchPokemon(ctx, id)
	if err != nil {
		if errors.Is(err, pokeapi.ErrNotFound) {
			logging.Debug().Int("id", id).Msg("Pokemon not found upstream")
		} else {
			logging.Error().Int("id", id).Err(err).Msg("PokéAPI fetch failed")
		}
		return nil, err
	}

	s.persist(ctx, rec, corrupt)
	return rec, nil
}

// persist writes a freshly fetched record. The outcome is observed but
// never propagated: the caller's response was already determined.
func (s *Service) persist(ctx context.Context, rec *models.Pokemon, replaceCorrupt bool) {
	if replaceCorrupt {
		if err := s.store.ReplacePokemon(ctx, rec); err != nil {
			metrics.StoreWrites.WithLabelValues("error").Inc()
			logging.Error().Int("id", rec.ID).Err(err).Msg("Failed to repair corrupt cache row")
			return
		}
		metrics.StoreWrites.WithLabelValues("replaced").Inc()
		logging.Info().Int("id", rec.ID).Msg("Repaired corrupt cache row")
		return
	}

	written, err := s.store.InsertPokemon(ctx, rec)
	switch {
	case err != nil:
		metrics.StoreWrites.WithLabelValues("error").Inc()
		logging.Error().Int("id", rec.ID).Err(err).Msg("Failed to cache pokemon")
	case written:
		metrics.StoreWrites.WithLabelValues("written").Inc()
		logging.Debug().Int("id", rec.ID).Msg("Cached pokemon")
	default:
		// Lost the race to a concurrent writer. Not a failure.
		metrics.StoreWrites.WithLabelValues("already_present").Inc()
		logging.Debug().Int("id", rec.ID).Msg("Pokemon already cached")
	}
}

// GetUserDex resolves a user's dex list. Unless refresh is set, a
// cached list younger than the TTL is served from the store; otherwise
// the list is scraped and the cache updated best-effort. Keys are
// lowercased.
func (s *Service) GetUserDex(ctx context.Context, canal, usuario string, refresh bool) ([]models.DexEntry, error) {
	canal = strings.ToLower(canal)
	usuario = strings.ToLower(usuario)

	if !refresh {
		entries, updatedAt, err := s.store.GetUserDex(ctx, canal, usuario)
		if err == nil && s.now().Sub(updatedAt) <= s.dexTTL {
			metrics.DexCacheHits.Inc()
			logging.Debug().Str("canal", canal).Str("usuario", usuario).Msg("Dex cache hit")
			return entries, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Warn().Str("canal", canal).Str("usuario", usuario).Err(err).
				Msg("Dex cache read failed, scraping")
		}
		metrics.DexCacheMisses.Inc()
	}

	entries, err := s.scraper.FetchDex(ctx, canal, usuario)
	if err != nil {
		return nil, fmt.Errorf("scrape dex for %s/%s: %w", canal, usuario, err)
	}

	if err := s.store.UpsertUserDex(ctx, canal, usuario, entries); err != nil {
		// Best-effort cache; the scraped list is still the answer.
		logging.Error().Str("canal", canal).Str("usuario", usuario).Err(err).
			Msg("Failed to update dex cache")
	}
	return entries, nil
}

// GetUserPokemons resolves the dex list and joins each entry with its
// pokemon details, choosing the shiny sprite for shiny entries.
// Entries whose details cannot be resolved are skipped with a warning;
// a permanently unavailable client fails the whole call.
func (s *Service) GetUserPokemons(ctx context.Context, canal, usuario string, refresh bool) ([]models.UserPokemon, error) {
	entries, err := s.GetUserDex(ctx, canal, usuario, refresh)
	if err != nil {
		return nil, err
	}

	result := make([]models.UserPokemon, 0, len(entries))
	for _, entry := range entries {
		rec, err := s.GetPokemon(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, ErrClientUnavailable) {
				return nil, err
			}
			logging.Warn().Int("id", entry.ID).Err(err).Msg("Skipping dex entry without details")
			continue
		}

		image := rec.Image
		if entry.Shiny {
			image = rec.ShinyImage
		}
		result = append(result, models.UserPokemon{
			ID:             rec.ID,
			Name:           rec.Name,
			Shiny:          entry.Shiny,
			Stats:          rec.Stats,
			TotalBaseStats: rec.TotalBaseStats,
			Types:          rec.Types,
			Image:          image,
		})
	}
	return result, nil
}
