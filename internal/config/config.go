// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package config loads and validates service configuration using
// Koanf v2 with three layers: struct defaults, an optional YAML file,
// and POKEDEX_-prefixed environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	PokeAPI  PokeAPIConfig  `koanf:"pokeapi"`
	Scrape   ScrapeConfig   `koanf:"scrape"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSAllowedOrigins lists the origins allowed to call the API
	// cross-origin. The service has always been consumed from browser
	// overlays on other origins, so the default allows all.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// DatabaseConfig configures the PostgreSQL connection pool. The
// discrete fields mirror the DB_* environment variables the service
// has always been deployed with.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"ssl_mode"`
	MaxConns int    `koanf:"max_conns"`
}

// DSN renders the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// PokeAPIConfig configures the PokéAPI GraphQL client.
type PokeAPIConfig struct {
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	UserAgent      string        `koanf:"user_agent"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
}

// ScrapeConfig configures the dex-list scraper and its cache.
type ScrapeConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	RequestsPerSec float64       `koanf:"requests_per_sec"`
	DexTTL         time.Duration `koanf:"dex_ttl"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               5000,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:     "",
			Port:     5432,
			User:     "",
			Password: "",
			Name:     "",
			SSLMode:  "prefer",
			MaxConns: 8,
		},
		PokeAPI: PokeAPIConfig{
			URL:            "https://beta.pokeapi.co/graphql/v1beta",
			Timeout:        30 * time.Second,
			UserAgent:      "Mozilla/5.0",
			BreakerEnabled: true,
		},
		Scrape: ScrapeConfig{
			BaseURL:        "https://grynsoft.com/spos-app/",
			Timeout:        20 * time.Second,
			RequestsPerSec: 1,
			DexTTL:         15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
	}
}

// Validate checks the configuration for values the service cannot run
// with. Errors name the offending field path.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host: required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user: required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name: required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port: must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns: must be positive, got %d", c.Database.MaxConns)
	}
	if c.PokeAPI.URL == "" {
		return fmt.Errorf("pokeapi.url: required")
	}
	if c.PokeAPI.Timeout <= 0 {
		return fmt.Errorf("pokeapi.timeout: must be positive, got %s", c.PokeAPI.Timeout)
	}
	if c.Scrape.BaseURL == "" {
		return fmt.Errorf("scrape.base_url: required")
	}
	if c.Scrape.Timeout <= 0 {
		return fmt.Errorf("scrape.timeout: must be positive, got %s", c.Scrape.Timeout)
	}
	if c.Scrape.DexTTL < 0 {
		return fmt.Errorf("scrape.dex_ttl: must not be negative, got %s", c.Scrape.DexTTL)
	}
	return nil
}
