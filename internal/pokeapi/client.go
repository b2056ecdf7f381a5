// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package pokeapi fetches pokemon details from the PokéAPI v1beta
// GraphQL endpoint and normalizes them into the canonical record
// shape.
//
// The client posts one parameterized query per fetch and is safe for
// concurrent use; it is constructed once at process start and shared.
// Failures are never retried here — retry policy, if any, belongs to
// the caller.
package pokeapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/pokedexcache/pokedexcache/internal/config"
	"github.com/pokedexcache/pokedexcache/internal/metrics"
	"github.com/pokedexcache/pokedexcache/internal/models"
)

// ErrNotFound reports that the remote source has no pokemon with the
// requested id. It is a legitimate terminal outcome, not a failure.
var ErrNotFound = errors.New("pokeapi: pokemon not found")

// maxErrorBodySize limits how much of an error response body is read
// for diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// Fetcher is the remote-fetch surface consumed by the service layer.
type Fetcher interface {
	FetchPokemon(ctx context.Context, id int) (*models.Pokemon, error)
}

// pokemonQuery is the single query the client issues, parameterized by
// $id. It requests identity, the stat list, the type list, and the
// sprite bundle.
const pokemonQuery = `query GetPokemonDetails($id: Int!) {
  pokemon_v2_pokemon(where: {id: {_eq: $id}}) {
    id
    name
    pokemon_v2_pokemonstats { base_stat pokemon_v2_stat { name } }
    pokemon_v2_pokemontypes { pokemon_v2_type { name } }
    pokemon_v2_pokemonsprites { sprites }
  }
}`

// Client talks to the PokéAPI GraphQL endpoint.
type Client struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// Compile-time check that Client implements Fetcher.
var _ Fetcher = (*Client)(nil)

// NewClient validates the endpoint and builds the shared client
// handle. A construction failure is permanent for the process
// lifetime: the service layer answers every request with a
// client-unavailable error when it holds no fetcher.
func NewClient(cfg config.PokeAPIConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid pokeapi endpoint %q: %w", cfg.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid pokeapi endpoint %q: missing scheme or host", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:  cfg.URL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// graphqlRequest is the POST body of one query execution.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]int `json:"variables"`
}

// graphqlResponse is the response envelope. Errors and Data may both
// be present; any error entry fails the fetch.
type graphqlResponse struct {
	Data struct {
		Pokemon []pokemonPayload `json:"pokemon_v2_pokemon"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// pokemonPayload is the nested per-pokemon shape returned upstream.
type pokemonPayload struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Stats []struct {
		BaseStat int `json:"base_stat"`
		Stat     struct {
			Name string `json:"name"`
		} `json:"pokemon_v2_stat"`
	} `json:"pokemon_v2_pokemonstats"`
	Types []struct {
		Type struct {
			Name string `json:"name"`
		} `json:"pokemon_v2_type"`
	} `json:"pokemon_v2_pokemontypes"`
	Sprites []struct {
		Sprites json.RawMessage `json:"sprites"`
	} `json:"pokemon_v2_pokemonsprites"`
}

// spriteBundle carries the two sprite URLs this service persists.
type spriteBundle struct {
	FrontDefault string `json:"front_default"`
	FrontShiny   string `json:"front_shiny"`
}

// FetchPokemon executes the query for one id and returns a fully
// normalized record, ErrNotFound when the response carries no matching
// pokemon, or an error on transport or response-shape failures.
func (c *Client) FetchPokemon(ctx context.Context, id int) (*models.Pokemon, error) {
	start := time.Now()
	rec, err := c.fetch(ctx, id)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrNotFound) {
		metrics.FetchNotFound.Inc()
	}
	return rec, err
}

func (c *Client) fetch(ctx context.Context, id int) (*models.Pokemon, error) {
	body, err := json.Marshal(graphqlRequest{
		Query:     pokemonQuery,
		Variables: map[string]int{"id": id},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.FetchErrors.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("pokeapi request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.FetchErrors.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("pokeapi returned HTTP %d: %s",
			resp.StatusCode, readBodyForError(resp.Body))
	}

	var envelope graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.FetchErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("decode pokeapi response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		metrics.FetchErrors.WithLabelValues("graphql").Inc()
		return nil, fmt.Errorf("pokeapi query error: %s", envelope.Errors[0].Message)
	}
	if len(envelope.Data.Pokemon) == 0 {
		return nil, ErrNotFound
	}

	return normalize(envelope.Data.Pokemon[0]), nil
}

// normalize flattens the nested upstream shape into the canonical
// record: stats keyed by name, ordered type names, summed base stats,
// and the two sprite URLs.
func normalize(payload pokemonPayload) *models.Pokemon {
	stats := make(map[string]int, len(payload.Stats))
	for _, s := range payload.Stats {
		stats[s.Stat.Name] = s.BaseStat
	}

	types := make([]string, 0, len(payload.Types))
	for _, t := range payload.Types {
		types = append(types, t.Type.Name)
	}

	var sprites spriteBundle
	if len(payload.Sprites) > 0 {
		sprites = decodeSprites(payload.Sprites[0].Sprites)
	}

	return &models.Pokemon{
		ID:             payload.ID,
		Name:           payload.Name,
		Stats:          stats,
		TotalBaseStats: models.SumStats(stats),
		Types:          types,
		Image:          sprites.FrontDefault,
		ShinyImage:     sprites.FrontShiny,
	}
}

// decodeSprites tolerates the sprite bundle arriving as a structured
// object or as a JSON-encoded string, returning an empty bundle on any
// decode failure. Sprite decoding is never fatal to a fetch.
func decodeSprites(raw json.RawMessage) spriteBundle {
	var bundle spriteBundle
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return bundle
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil || inner == "" {
			return spriteBundle{}
		}
		if err := json.Unmarshal([]byte(inner), &bundle); err != nil {
			return spriteBundle{}
		}
		return bundle
	}
	if err := json.Unmarshal(trimmed, &bundle); err != nil {
		return spriteBundle{}
	}
	return bundle
}

// readBodyForError reads at most maxErrorBodySize of a response body
// for error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}
