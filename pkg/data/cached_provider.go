package data

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// MemoryCache implements CandleCache using in-memory storage
type MemoryCache struct {
	cache map[string][]types.Candle
	mutex sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: make(map[string][]types.Candle),
	}
}

func cloneCandles(candles []types.Candle) []types.Candle {
	out := make([]types.Candle, len(candles))
	for i, c := range candles {
		out[i] = c.Clone()
	}
	return out
}

// Get retrieves candles from cache if available
func (c *MemoryCache) Get(key string) ([]types.Candle, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	candles, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	return cloneCandles(candles), true
}

// Set stores candles in cache
func (c *MemoryCache) Set(key string, candles []types.Candle) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[key] = cloneCandles(candles)
}

// Clear removes all cached data
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache = make(map[string][]types.Candle)
}

// Size returns the number of cached entries
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.cache)
}

// CachedProvider wraps a CSVProvider so a file shared by several runs is parsed once
type CachedProvider struct {
	provider *CSVProvider
	cache    CandleCache
}

// NewCachedProvider creates a new cached data provider
func NewCachedProvider(provider *CSVProvider) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    NewMemoryCache(),
	}
}

// GetName returns the name of the underlying provider with cache indication
func (p *CachedProvider) GetName() string {
	return "Cached " + p.provider.GetName()
}

// LoadCandles loads a candle file, serving repeated loads from memory
func (p *CachedProvider) LoadCandles(source string) ([]types.Candle, error) {
	if cached, exists := p.cache.Get(source); exists {
		return cached, nil
	}

	log.Printf("🔄 Loading candles from %s", filepath.Base(source))
	candles, err := p.provider.LoadCandles(source)
	if err != nil {
		log.Printf("❌ Failed to load candles from %s: %v", filepath.Base(source), err)
		return nil, err
	}

	p.cache.Set(source, candles)

	log.Printf("✅ Loaded and cached candles from %s (%d records)", filepath.Base(source), len(candles))
	return candles, nil
}

// ClearCache clears all cached data
func (p *CachedProvider) ClearCache() {
	p.cache.Clear()
}

// GetCacheSize returns the number of cached entries
func (p *CachedProvider) GetCacheSize() int {
	return p.cache.Size()
}
