// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

// Package scrape extracts a user's dex list from the Grynsoft SPOS
// page. The scraper is rate limited toward the upstream site and
// returns the raw list in page order; caching is the service layer's
// concern.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/pokedexcache/pokedexcache/internal/config"
	"github.com/pokedexcache/pokedexcache/internal/logging"
	"github.com/pokedexcache/pokedexcache/internal/metrics"
	"github.com/pokedexcache/pokedexcache/internal/models"
)

// Scraper is the dex-list source consumed by the service layer.
type Scraper interface {
	FetchDex(ctx context.Context, canal, usuario string) ([]models.DexEntry, error)
}

// Client scrapes dex lists from the Grynsoft SPOS app.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Compile-time check that Client implements Scraper.
var _ Scraper = (*Client)(nil)

// NewClient builds a scraper for the configured base URL.
func NewClient(cfg config.ScrapeConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchDex downloads and parses one user's dex page. Entries are
// returned in page order, deduplicated by id, with the shiny flag
// taken from the element id. Entries whose index is not numeric are
// skipped.
func (c *Client) FetchDex(ctx context.Context, canal, usuario string) ([]models.DexEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s?c=%s&u=%s", c.baseURL,
		url.QueryEscape(canal), url.QueryEscape(usuario))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ScrapeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.ScrapeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("scrape returned HTTP %d for %s/%s", resp.StatusCode, canal, usuario)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		metrics.ScrapeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("parse scrape response: %w", err)
	}

	entries := parseDex(doc)
	metrics.ScrapeRequests.WithLabelValues("ok").Inc()
	logging.Debug().
		Str("canal", canal).
		Str("usuario", usuario).
		Int("entries", len(entries)).
		Msg("Scraped dex list")
	return entries, nil
}

// parseDex walks the obtained pokemon elements and extracts (id,
// shiny) pairs.
func parseDex(doc *goquery.Document) []models.DexEntry {
	entries := []models.DexEntry{}
	seen := map[int]bool{}

	doc.Find(".Pokemon:not(#unobtained)").Each(func(_ int, sel *goquery.Selection) {
		index := sel.Find(".Index").First()
		if index.Length() == 0 {
			return
		}
		idText := strings.TrimLeft(strings.TrimSpace(index.Text()), "#0")
		id, err := strconv.Atoi(idText)
		if err != nil || id <= 0 {
			return
		}
		if seen[id] {
			return
		}
		seen[id] = true

		elemID, _ := sel.Attr("id")
		entries = append(entries, models.DexEntry{ID: id, Shiny: elemID == "shiny"})
	})
	return entries
}
