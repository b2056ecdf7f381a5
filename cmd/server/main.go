// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package main is the entry point for the pokedexcache server.
//
// Startup order:
//
//  1. Environment: load .env, map legacy DB_* variables
//  2. Configuration: defaults, optional YAML file, POKEDEX_ env vars
//  3. Logging: zerolog, optionally rotating to a file
//  4. Store: PostgreSQL pool + schema bootstrap (fatal on failure)
//  5. PokéAPI client: built once; a construction failure is permanent
//     and every lookup then reports the client as unavailable
//  6. HTTP server: chi router with graceful shutdown
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pokedexcache/pokedexcache/internal/api"
	"github.com/pokedexcache/pokedexcache/internal/config"
	"github.com/pokedexcache/pokedexcache/internal/dexcache"
	"github.com/pokedexcache/pokedexcache/internal/logging"
	"github.com/pokedexcache/pokedexcache/internal/pokeapi"
	"github.com/pokedexcache/pokedexcache/internal/scrape"
	"github.com/pokedexcache/pokedexcache/internal/store"
)

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()
	config.LegacyEnvAliases()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	logging.Info().Str("level", cfg.Logging.Level).Msg("Starting pokedexcache")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pg, err := store.NewPostgres(ctx, cfg.Database)
	if err != nil {
		cancel()
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := pg.Bootstrap(ctx); err != nil {
		cancel()
		logging.Fatal().Err(err).Msg("Failed to bootstrap database schema")
	}
	cancel()
	defer pg.Close()

	// The PokéAPI client is constructed once. When construction fails
	// the process keeps serving, answering lookups with a
	// client-unavailable error for its remaining lifetime.
	var fetcher pokeapi.Fetcher
	client, err := pokeapi.NewClient(cfg.PokeAPI)
	if err != nil {
		logging.Error().Err(err).Msg("CRITICAL: PokéAPI client setup failed, lookups will be unavailable")
	} else if cfg.PokeAPI.BreakerEnabled {
		fetcher = pokeapi.NewBreakerClient(client)
	} else {
		fetcher = client
	}

	scraper := scrape.NewClient(cfg.Scrape)
	svc := dexcache.New(pg, fetcher, scraper, cfg.Scrape.DexTTL)

	router := api.NewRouter(api.NewHandler(svc, pg), cfg.Server.CORSAllowedOrigins)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logging.Info().Msg("Server stopped")
}
