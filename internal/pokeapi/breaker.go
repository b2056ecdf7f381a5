// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

package pokeapi

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pokedexcache/pokedexcache/internal/logging"
	"github.com/pokedexcache/pokedexcache/internal/metrics"
	"github.com/pokedexcache/pokedexcache/internal/models"
)

// BreakerClient wraps a Fetcher with a circuit breaker so a failing
// upstream sheds load instead of stacking timeouts. The breaker never
// retries: a rejected or failed call surfaces as the fetch outcome.
type BreakerClient struct {
	fetcher Fetcher
	cb      *gobreaker.CircuitBreaker[*models.Pokemon]
	name    string
}

// Compile-time check that BreakerClient implements Fetcher.
var _ Fetcher = (*BreakerClient)(nil)

// NewBreakerClient wraps fetcher with a circuit breaker.
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 1 minute open period before half-open probing
//   - Opens after 60% failure rate with minimum 10 requests
//
// ErrNotFound is a legitimate outcome and never counts as a failure.
func NewBreakerClient(fetcher Fetcher) *BreakerClient {
	cbName := "pokeapi"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*models.Pokemon](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{fetcher: fetcher, cb: cb, name: cbName}
}

// FetchPokemon executes the wrapped fetch through the breaker.
func (b *BreakerClient) FetchPokemon(ctx context.Context, id int) (*models.Pokemon, error) {
	rec, err := b.cb.Execute(func() (*models.Pokemon, error) {
		return b.fetcher.FetchPokemon(ctx, id)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.FetchErrors.WithLabelValues("breaker").Inc()
	}
	return rec, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}
