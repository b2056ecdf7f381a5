// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pokedexcache/pokedexcache/internal/config"
	"github.com/pokedexcache/pokedexcache/internal/logging"
	"github.com/pokedexcache/pokedexcache/internal/models"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Compile-time check that Postgres implements Store.
var _ Store = (*Postgres)(nil)

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Bootstrap creates the pokemon and user_dex_cache tables when they do
// not exist yet.
func (p *Postgres) Bootstrap(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pokemon (
			id INTEGER PRIMARY KEY, name TEXT, stats JSONB,
			total_base_stats INTEGER, types JSONB, image TEXT, shiny_image TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS user_dex_cache (
			canal TEXT NOT NULL, usuario TEXT NOT NULL, pokemon_list JSONB,
			last_updated TIMESTAMPTZ NOT NULL, PRIMARY KEY (canal, usuario)
		)`,
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	logging.Info().Msg("Database schema verified")
	return nil
}

// GetPokemon looks up one cached record. Row absence maps to
// ErrNotFound, undecodable stats/types columns to ErrCorrupt, and any
// connectivity or query failure to ErrUnavailable so the caller
// degrades to a remote fetch.
func (p *Postgres) GetPokemon(ctx context.Context, id int) (*models.Pokemon, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	var (
		rec      models.Pokemon
		statsRaw []byte
		typesRaw []byte
	)
	err = conn.QueryRow(ctx,
		`SELECT id, name, stats, total_base_stats, types,
		        COALESCE(image, ''), COALESCE(shiny_image, '')
		 FROM pokemon WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Name, &statsRaw, &rec.TotalBaseStats, &typesRaw, &rec.Image, &rec.ShinyImage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec.Stats, err = models.DecodeStats(statsRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.Types, err = models.DecodeTypes(typesRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &rec, nil
}

// InsertPokemon writes a record with ON CONFLICT DO NOTHING so racing
// writers for the same id never surface a uniqueness violation. The
// bool result reports whether this call created the row.
func (p *Postgres) InsertPokemon(ctx context.Context, rec *models.Pokemon) (bool, error) {
	statsJSON, typesJSON, err := encodeColumns(rec)
	if err != nil {
		return false, err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx,
		`INSERT INTO pokemon (id, name, stats, total_base_stats, types, image, shiny_image)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Name, statsJSON, rec.TotalBaseStats, typesJSON,
		nullIfEmpty(rec.Image), nullIfEmpty(rec.ShinyImage))
	if err != nil {
		return false, fmt.Errorf("insert pokemon %d: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReplacePokemon overwrites an existing row. Only the corrupt-row
// repair path uses this; ordinary misses go through InsertPokemon.
func (p *Postgres) ReplacePokemon(ctx context.Context, rec *models.Pokemon) error {
	statsJSON, typesJSON, err := encodeColumns(rec)
	if err != nil {
		return err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO pokemon (id, name, stats, total_base_stats, types, image, shiny_image)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			stats = EXCLUDED.stats,
			total_base_stats = EXCLUDED.total_base_stats,
			types = EXCLUDED.types,
			image = EXCLUDED.image,
			shiny_image = EXCLUDED.shiny_image`,
		rec.ID, rec.Name, statsJSON, rec.TotalBaseStats, typesJSON,
		nullIfEmpty(rec.Image), nullIfEmpty(rec.ShinyImage))
	if err != nil {
		return fmt.Errorf("replace pokemon %d: %w", rec.ID, err)
	}
	return nil
}

// GetUserDex returns a user's cached dex list with its write time.
func (p *Postgres) GetUserDex(ctx context.Context, canal, usuario string) ([]models.DexEntry, time.Time, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	var (
		listRaw     []byte
		lastUpdated time.Time
	)
	err = conn.QueryRow(ctx,
		`SELECT pokemon_list, last_updated FROM user_dex_cache
		 WHERE canal = $1 AND usuario = $2`, canal, usuario,
	).Scan(&listRaw, &lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	entries, err := models.DecodeDexEntries(listRaw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, lastUpdated, nil
}

// UpsertUserDex inserts or replaces a user's dex list.
func (p *Postgres) UpsertUserDex(ctx context.Context, canal, usuario string, entries []models.DexEntry) error {
	listJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode dex entries: %w", err)
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO user_dex_cache (canal, usuario, pokemon_list, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (canal, usuario) DO UPDATE SET
			pokemon_list = EXCLUDED.pokemon_list,
			last_updated = EXCLUDED.last_updated`,
		canal, usuario, listJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert user dex %s/%s: %w", canal, usuario, err)
	}
	return nil
}

// Ping verifies pool connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// encodeColumns serializes the structured fields for their JSONB
// columns.
func encodeColumns(rec *models.Pokemon) (statsJSON, typesJSON []byte, err error) {
	statsJSON, err = json.Marshal(rec.Stats)
	if err != nil {
		return nil, nil, fmt.Errorf("encode stats: %w", err)
	}
	typesJSON, err = json.Marshal(rec.Types)
	if err != nil {
		return nil, nil, fmt.Errorf("encode types: %w", err)
	}
	return statsJSON, typesJSON, nil
}

// nullIfEmpty maps an empty string to SQL NULL.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
