package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCacheTTL is how long a fetched dataset is reused.
const DefaultCacheTTL = 10 * time.Minute

// CachedFetcher wraps URL fetching with an in-process TTL cache so repeated
// runs against the same dataset URL download it once.
type CachedFetcher struct {
	options   *Options
	cacheTTL  time.Duration
	skipCache bool
	clock     clockwork.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result    *Result
	fetchedAt time.Time
}

// CachedFetcherConfig holds configuration for the cached fetcher.
type CachedFetcherConfig struct {
	CacheTTL  time.Duration
	SkipCache bool
	Options   *Options
	Clock     clockwork.Clock
}

// DefaultCachedFetcherConfig returns sensible defaults.
func DefaultCachedFetcherConfig() *CachedFetcherConfig {
	return &CachedFetcherConfig{
		CacheTTL: DefaultCacheTTL,
		Options:  DefaultOptions(),
		Clock:    clockwork.NewRealClock(),
	}
}

// NewCachedFetcher creates a new cached fetcher.
func NewCachedFetcher(config *CachedFetcherConfig) *CachedFetcher {
	if config == nil {
		config = DefaultCachedFetcherConfig()
	}
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &CachedFetcher{
		options:   config.Options,
		cacheTTL:  config.CacheTTL,
		skipCache: config.SkipCache,
		clock:     config.Clock,
		entries:   make(map[string]cacheEntry),
	}
}

// CachedResult extends Result with cache metadata.
type CachedResult struct {
	*Result
	FromCache bool
	FetchedAt time.Time
}

// Fetch retrieves a URL, using the cache if the entry is still fresh.
// Only successful responses are cached.
func (f *CachedFetcher) Fetch(ctx context.Context, urlStr string) (*CachedResult, error) {
	now := f.clock.Now()

	if !f.skipCache {
		f.mu.Lock()
		entry, ok := f.entries[urlStr]
		f.mu.Unlock()
		if ok && now.Sub(entry.fetchedAt) < f.cacheTTL {
			return &CachedResult{Result: entry.result, FromCache: true, FetchedAt: entry.fetchedAt}, nil
		}
	}

	result, err := URL(ctx, urlStr, f.options)
	if err != nil {
		return nil, err
	}

	if !f.skipCache {
		f.mu.Lock()
		f.entries[urlStr] = cacheEntry{result: result, fetchedAt: now}
		f.mu.Unlock()
	}
	return &CachedResult{Result: result, FetchedAt: now}, nil
}

// Purge drops expired entries and returns how many were removed.
func (f *CachedFetcher) Purge() int {
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for key, entry := range f.entries {
		if now.Sub(entry.fetchedAt) >= f.cacheTTL {
			delete(f.entries, key)
			removed++
		}
	}
	return removed
}
