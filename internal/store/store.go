// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package store persists pokemon records and user dex lists in
// PostgreSQL. The Store interface is the narrow surface the service
// layer consumes; Postgres is the production implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pokedexcache/pokedexcache/internal/models"
)

// Sentinel errors for cache read outcomes.
var (
	// ErrNotFound reports that no row exists for the key (cache miss).
	ErrNotFound = errors.New("store: not found")

	// ErrCorrupt reports that a row exists but its structured columns
	// failed to decode. Callers treat it exactly like a miss.
	ErrCorrupt = errors.New("store: corrupt row")

	// ErrUnavailable reports that the store could not be reached; the
	// caller proceeds without a cache check.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the persistence surface consumed by the service layer.
//
// All methods acquire a connection for the duration of one logical
// operation and release it on every exit path. Implementations must be
// safe for concurrent use.
type Store interface {
	// GetPokemon returns the cached record for id, ErrNotFound on a
	// miss, ErrCorrupt when the row's stats or types columns do not
	// decode, or ErrUnavailable when the store cannot be reached.
	GetPokemon(ctx context.Context, id int) (*models.Pokemon, error)

	// InsertPokemon persists a record with insert-or-ignore semantics.
	// It reports false when a row with the same id already existed;
	// a concurrent duplicate insert is never an error.
	InsertPokemon(ctx context.Context, p *models.Pokemon) (bool, error)

	// ReplacePokemon persists a record, overwriting any existing row
	// with the same id. Used only to repair corrupt rows.
	ReplacePokemon(ctx context.Context, p *models.Pokemon) error

	// GetUserDex returns a user's cached dex list and when it was
	// written, or ErrNotFound / ErrCorrupt / ErrUnavailable.
	GetUserDex(ctx context.Context, canal, usuario string) ([]models.DexEntry, time.Time, error)

	// UpsertUserDex inserts or replaces a user's dex list, stamping it
	// with the current time.
	UpsertUserDex(ctx context.Context, canal, usuario string, entries []models.DexEntry) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying pool.
	Close()
}
