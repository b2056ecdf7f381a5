// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

package models

import "fmt"

// DexEntry is one entry of a user's scraped dex list: the Pokédex
// number plus whether the user owns the shiny variant.
type DexEntry struct {
	ID    int  `json:"id"`
	Shiny bool `json:"shiny"`
}

// DecodeDexEntries decodes a persisted pokemon_list column, accepting
// the same structured-or-text-encoded representations as DecodeStats.
func DecodeDexEntries(raw []byte) ([]DexEntry, error) {
	var entries []DexEntry
	if err := decodeDual(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode dex entries: %w", err)
	}
	return entries, nil
}

// UserPokemon is a dex entry joined with its cached Pokémon details,
// as served by the combined /api/v1/pokemons endpoint. Image carries
// the shiny sprite when the entry is shiny.
type UserPokemon struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	Shiny          bool           `json:"shiny"`
	Stats          map[string]int `json:"stats"`
	TotalBaseStats int            `json:"total_base_stats"`
	Types          []string       `json:"types"`
	Image          string         `json:"image,omitempty"`
}
