// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pokedexcache/config.yaml",
	"/etc/pokedexcache/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "POKEDEX_CONFIG_PATH"

// envPrefix is stripped from environment variables before they are
// mapped onto config paths: POKEDEX_DATABASE_HOST -> database.host.
const envPrefix = "POKEDEX_"

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
//
// Examples:
//   - POKEDEX_DATABASE_HOST -> database.host
//   - POKEDEX_POKEAPI_URL -> pokeapi.url
//   - POKEDEX_LOGGING_LEVEL -> logging.level
//
// Legacy DB_* variables from the original deployment are also honored
// via aliases (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME).
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	key = strings.ToLower(key)

	// Section names never contain underscores, so the first segment is
	// the section and the remainder is the field.
	section, field, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + field
}

// LegacyEnvAliases maps the original deployment's flat DB_* variables
// onto POKEDEX_ equivalents. Called before Load by main.
func LegacyEnvAliases() {
	aliases := map[string]string{
		"DB_HOST":             "POKEDEX_DATABASE_HOST",
		"DB_PORT":             "POKEDEX_DATABASE_PORT",
		"DB_USER":             "POKEDEX_DATABASE_USER",
		"DB_PASSWORD":         "POKEDEX_DATABASE_PASSWORD",
		"DB_NAME":             "POKEDEX_DATABASE_NAME",
		"POKEAPI_GRAPHQL_URL": "POKEDEX_POKEAPI_URL",
	}
	for legacy, canonical := range aliases {
		if v, ok := os.LookupEnv(legacy); ok && os.Getenv(canonical) == "" {
			os.Setenv(canonical, v)
		}
	}
}
