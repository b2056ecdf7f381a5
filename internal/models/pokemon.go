// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package models defines the canonical record shapes shared by the
// store, the PokéAPI client, and the HTTP handlers.
package models

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Pokemon is the canonical cached record for one Pokédex entry.
//
// A record is created exactly once per ID and never mutated afterwards;
// the persistent store is the sole durable owner. TotalBaseStats is a
// derived value computed once at write time: it equals the sum of Stats
// at that moment and is not re-validated on read.
type Pokemon struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	Stats          map[string]int `json:"stats"`
	TotalBaseStats int            `json:"total_base_stats"`
	Types          []string       `json:"types"`
	Image          string         `json:"image,omitempty"`
	ShinyImage     string         `json:"shiny_image,omitempty"`
}

// SumStats returns the sum of all base stat values (0 when empty).
func SumStats(stats map[string]int) int {
	total := 0
	for _, v := range stats {
		total += v
	}
	return total
}

// DecodeStats decodes a persisted stats column into a stat-name -> value
// mapping. The column may hold the mapping as a structured JSON object
// or as a JSON string containing an encoded object (legacy writers
// double-encoded); both forms are accepted transparently. Any other
// shape is a decode error, which the reader treats as cache corruption.
func DecodeStats(raw []byte) (map[string]int, error) {
	var stats map[string]int
	if err := decodeDual(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if stats == nil {
		stats = map[string]int{}
	}
	return stats, nil
}

// DecodeTypes decodes a persisted types column into an ordered list of
// type names, accepting the same two representations as DecodeStats.
func DecodeTypes(raw []byte) ([]string, error) {
	var types []string
	if err := decodeDual(raw, &types); err != nil {
		return nil, fmt.Errorf("decode types: %w", err)
	}
	if types == nil {
		types = []string{}
	}
	return types, nil
}

// decodeDual is the tagged-variant decode shared by the column
// decoders: a value starting with a quote is unwrapped as a JSON string
// first, then the inner document is decoded into v. Empty and JSON-null
// values decode to the zero value.
func decodeDual(raw []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return err
		}
		if inner == "" {
			return nil
		}
		return json.Unmarshal([]byte(inner), v)
	}
	return json.Unmarshal(trimmed, v)
}
