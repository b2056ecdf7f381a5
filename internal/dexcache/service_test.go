// Pokedexcache - Pokédex Data Caching Service
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pokedexcache/pokedexcache

package dexcache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pokedexcache/pokedexcache/internal/models"
	"github.com/pokedexcache/pokedexcache/internal/pokeapi"
	"github.com/pokedexcache/pokedexcache/internal/store"
)

// fakeStore is an in-memory Store with injectable failure modes.
type fakeStore struct {
	mu          sync.Mutex
	pokemon     map[int]*models.Pokemon
	corruptIDs  map[int]bool
	unavailable bool

	dexEntries map[string][]models.DexEntry
	dexUpdated map[string]time.Time

	getCalls    int
	insertCalls int
	upsertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pokemon:    map[int]*models.Pokemon{},
		corruptIDs: map[int]bool{},
		dexEntries: map[string][]models.DexEntry{},
		dexUpdated: map[string]time.Time{},
	}
}

func (f *fakeStore) GetPokemon(_ context.Context, id int) (*models.Pokemon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.unavailable {
		return nil, store.ErrUnavailable
	}
	if f.corruptIDs[id] {
		return nil, store.ErrCorrupt
	}
	rec, ok := f.pokemon[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) InsertPokemon(_ context.Context, rec *models.Pokemon) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.unavailable {
		return false, store.ErrUnavailable
	}
	if _, exists := f.pokemon[rec.ID]; exists || f.corruptIDs[rec.ID] {
		return false, nil
	}
	clone := *rec
	f.pokemon[rec.ID] = &clone
	return true, nil
}

func (f *fakeStore) ReplacePokemon(_ context.Context, rec *models.Pokemon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *rec
	f.pokemon[rec.ID] = &clone
	delete(f.corruptIDs, rec.ID)
	return nil
}

func (f *fakeStore) GetUserDex(_ context.Context, canal, usuario string) ([]models.DexEntry, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := canal + "/" + usuario
	entries, ok := f.dexEntries[key]
	if !ok {
		return nil, time.Time{}, store.ErrNotFound
	}
	return entries, f.dexUpdated[key], nil
}

func (f *fakeStore) UpsertUserDex(_ context.Context, canal, usuario string, entries []models.DexEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := canal + "/" + usuario
	f.dexEntries[key] = entries
	f.dexUpdated[key] = time.Now()
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close()                     {}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pokemon)
}

// fakeFetcher serves canned records and counts calls.
type fakeFetcher struct {
	records map[int]*models.Pokemon
	err     error
	calls   atomic.Int64
}

func (f *fakeFetcher) FetchPokemon(_ context.Context, id int) (*models.Pokemon, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, pokeapi.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

// fakeScraper serves one canned dex list.
type fakeScraper struct {
	entries []models.DexEntry
	err     error
	calls   atomic.Int64
}

func (f *fakeScraper) FetchDex(context.Context, string, string) ([]models.DexEntry, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func pikachu() *models.Pokemon {
	return &models.Pokemon{
		ID:             25,
		Name:           "pikachu",
		Stats:          map[string]int{"hp": 35, "attack": 55},
		TotalBaseStats: 90,
		Types:          []string{"electric"},
		Image:          "https://img/25.png",
		ShinyImage:     "https://img/25s.png",
	}
}

func TestGetPokemonCacheHit(t *testing.T) {
	st := newFakeStore()
	st.pokemon[25] = pikachu()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	rec, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("GetPokemon returned error: %v", err)
	}
	if !reflect.DeepEqual(rec, pikachu()) {
		t.Errorf("Expected cached record, got %+v", rec)
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("Cache hit must not call the remote fetch, got %d calls", got)
	}
	if st.insertCalls != 0 {
		t.Errorf("Cache hit must not write, got %d inserts", st.insertCalls)
	}
}

func TestGetPokemonMissFetchesAndCaches(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{25: pikachu()}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	rec, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("GetPokemon returned error: %v", err)
	}
	if rec.TotalBaseStats != 90 {
		t.Errorf("Expected total base stats 90, got %d", rec.TotalBaseStats)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one remote fetch, got %d", got)
	}
	if st.rowCount() != 1 {
		t.Errorf("Expected exactly one row after miss, got %d", st.rowCount())
	}
}

func TestGetPokemonIdempotent(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{25: pikachu()}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	first, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("First call returned error: %v", err)
	}
	second, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("Second call returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Sequential calls disagree: %+v vs %+v", first, second)
	}
	if st.rowCount() != 1 {
		t.Errorf("Expected a single row after two calls, got %d", st.rowCount())
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("Second call must be served from cache, got %d fetches", got)
	}
}

func TestGetPokemonConcurrentSingleRow(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{25: pikachu()}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	const n = 32
	var wg sync.WaitGroup
	results := make([]*models.Pokemon, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetPokemon(context.Background(), 25)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Concurrent call %d failed: %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i], results[0]) {
			t.Errorf("Concurrent call %d returned a different record", i)
		}
	}
	if st.rowCount() != 1 {
		t.Errorf("Expected exactly one row after %d concurrent calls, got %d", n, st.rowCount())
	}
}

func TestGetPokemonCorruptRowRefetchesAndRepairs(t *testing.T) {
	st := newFakeStore()
	st.corruptIDs[25] = true
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{25: pikachu()}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	rec, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("Corrupt row must degrade to a successful refetch, got %v", err)
	}
	if rec.Name != "pikachu" {
		t.Errorf("Expected refetched record, got %+v", rec)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected one remote fetch for corrupt row, got %d", got)
	}

	// The corrupt row was replaced: the next read is a cache hit.
	if _, err := svc.GetPokemon(context.Background(), 25); err != nil {
		t.Fatalf("Read after repair failed: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("Repaired row must serve from cache, got %d fetches", got)
	}
}

func TestGetPokemonStoreUnavailableSkipsCache(t *testing.T) {
	st := newFakeStore()
	st.unavailable = true
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{25: pikachu()}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	rec, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("Unavailable store must not fail the call, got %v", err)
	}
	if rec.Name != "pikachu" {
		t.Errorf("Expected fetched record, got %+v", rec)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected one remote fetch, got %d", got)
	}
}

func TestGetPokemonWriteFailureStillReturnsRecord(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{25: pikachu()}}
	// Store readable (miss) but every write fails.
	failing := &writeFailingStore{fakeStore: st}
	svc := New(failing, fetcher, &fakeScraper{}, time.Minute)

	rec, err := svc.GetPokemon(context.Background(), 25)
	if err != nil {
		t.Fatalf("Write failure must be swallowed, got %v", err)
	}
	if rec.Name != "pikachu" {
		t.Errorf("Expected fetched record despite write failure, got %+v", rec)
	}
}

// writeFailingStore fails every insert while leaving reads intact.
type writeFailingStore struct {
	*fakeStore
}

func (w *writeFailingStore) InsertPokemon(context.Context, *models.Pokemon) (bool, error) {
	return false, errors.New("disk full")
}

func TestGetPokemonNotFoundUpstream(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{}}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	_, err := svc.GetPokemon(context.Background(), 999999)
	if !errors.Is(err, pokeapi.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if st.rowCount() != 0 {
		t.Errorf("NotFound must not write a row, got %d rows", st.rowCount())
	}
}

func TestGetPokemonRemoteErrorPropagates(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{err: errors.New("upstream on fire")}
	svc := New(st, fetcher, &fakeScraper{}, time.Minute)

	_, err := svc.GetPokemon(context.Background(), 25)
	if err == nil {
		t.Fatal("Expected remote error to propagate")
	}
	if st.rowCount() != 0 {
		t.Errorf("Remote error must not write a row, got %d rows", st.rowCount())
	}
}

func TestGetPokemonClientUnavailable(t *testing.T) {
	svc := New(newFakeStore(), nil, &fakeScraper{}, time.Minute)

	_, err := svc.GetPokemon(context.Background(), 25)
	if !errors.Is(err, ErrClientUnavailable) {
		t.Errorf("Expected ErrClientUnavailable, got %v", err)
	}
}

func TestGetPokemonInvalidID(t *testing.T) {
	svc := New(newFakeStore(), &fakeFetcher{}, &fakeScraper{}, time.Minute)

	for _, id := range []int{0, -3} {
		if _, err := svc.GetPokemon(context.Background(), id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("GetPokemon(%d): expected ErrInvalidID, got %v", id, err)
		}
	}
}

func TestGetUserDexFreshCacheHit(t *testing.T) {
	st := newFakeStore()
	st.dexEntries["chan/user"] = []models.DexEntry{{ID: 25}}
	st.dexUpdated["chan/user"] = time.Now()
	scraper := &fakeScraper{entries: []models.DexEntry{{ID: 1}}}
	svc := New(st, &fakeFetcher{}, scraper, 15*time.Minute)

	entries, err := svc.GetUserDex(context.Background(), "Chan", "User", false)
	if err != nil {
		t.Fatalf("GetUserDex returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 25 {
		t.Errorf("Expected cached list, got %v", entries)
	}
	if scraper.calls.Load() != 0 {
		t.Error("Fresh cache must not trigger a scrape")
	}
}

func TestGetUserDexExpiredCacheScrapes(t *testing.T) {
	st := newFakeStore()
	st.dexEntries["chan/user"] = []models.DexEntry{{ID: 25}}
	st.dexUpdated["chan/user"] = time.Now().Add(-time.Hour)
	scraper := &fakeScraper{entries: []models.DexEntry{{ID: 1}, {ID: 6, Shiny: true}}}
	svc := New(st, &fakeFetcher{}, scraper, 15*time.Minute)

	entries, err := svc.GetUserDex(context.Background(), "chan", "user", false)
	if err != nil {
		t.Fatalf("GetUserDex returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected scraped list, got %v", entries)
	}
	if scraper.calls.Load() != 1 {
		t.Errorf("Expected one scrape, got %d", scraper.calls.Load())
	}
	// The scrape result replaced the cached list.
	if got := st.dexEntries["chan/user"]; len(got) != 2 {
		t.Errorf("Expected cache updated with scraped list, got %v", got)
	}
}

func TestGetUserDexRefreshBypassesCache(t *testing.T) {
	st := newFakeStore()
	st.dexEntries["chan/user"] = []models.DexEntry{{ID: 25}}
	st.dexUpdated["chan/user"] = time.Now()
	scraper := &fakeScraper{entries: []models.DexEntry{{ID: 1}}}
	svc := New(st, &fakeFetcher{}, scraper, 15*time.Minute)

	entries, err := svc.GetUserDex(context.Background(), "chan", "user", true)
	if err != nil {
		t.Fatalf("GetUserDex returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 1 {
		t.Errorf("Expected scraped list on refresh, got %v", entries)
	}
	if scraper.calls.Load() != 1 {
		t.Errorf("Expected one scrape on refresh, got %d", scraper.calls.Load())
	}
}

func TestGetUserDexUpsertFailureSwallowed(t *testing.T) {
	st := newFakeStore()
	st.upsertErr = errors.New("disk full")
	scraper := &fakeScraper{entries: []models.DexEntry{{ID: 1}}}
	svc := New(st, &fakeFetcher{}, scraper, 15*time.Minute)

	entries, err := svc.GetUserDex(context.Background(), "chan", "user", false)
	if err != nil {
		t.Fatalf("Cache write failure must be swallowed, got %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected scraped list despite upsert failure, got %v", entries)
	}
}

func TestGetUserPokemonsJoinsAndPicksShinySprite(t *testing.T) {
	st := newFakeStore()
	st.pokemon[25] = pikachu()
	fetcher := &fakeFetcher{records: map[int]*models.Pokemon{}}
	scraper := &fakeScraper{entries: []models.DexEntry{
		{ID: 25, Shiny: true},
		{ID: 404, Shiny: false}, // unresolvable, skipped
	}}
	svc := New(st, fetcher, scraper, 15*time.Minute)

	result, err := svc.GetUserPokemons(context.Background(), "chan", "user", false)
	if err != nil {
		t.Fatalf("GetUserPokemons returned error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected one resolved entry, got %v", result)
	}
	if !result[0].Shiny || result[0].Image != "https://img/25s.png" {
		t.Errorf("Expected shiny sprite selected, got %+v", result[0])
	}
	if result[0].TotalBaseStats != 90 {
		t.Errorf("Expected joined stats, got %+v", result[0])
	}
}

func TestGetUserPokemonsClientUnavailableFails(t *testing.T) {
	st := newFakeStore()
	scraper := &fakeScraper{entries: []models.DexEntry{{ID: 25}}}
	svc := New(st, nil, scraper, 15*time.Minute)

	_, err := svc.GetUserPokemons(context.Background(), "chan", "user", false)
	if !errors.Is(err, ErrClientUnavailable) {
		t.Errorf("Expected ErrClientUnavailable, got %v", err)
	}
}
