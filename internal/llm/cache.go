package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// ClientKey identifies a cacheable Provider instance. Instances are
// cached process-wide by (provider, model, max_tokens, skip_stats) to
// amortize construction.
type ClientKey struct {
	Provider  ProviderType
	Model     string
	MaxTokens int
	SkipStats bool
}

func (k ClientKey) hash() string {
	data := fmt.Sprintf("%s:%s:%d:%t", k.Provider, k.Model, k.MaxTokens, k.SkipStats)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:8])
}

// ProviderCache caches constructed Provider instances by ClientKey.
type ProviderCache struct {
	mu    sync.RWMutex
	cache map[string]Provider
}

// NewProviderCache returns an empty process-wide cache.
func NewProviderCache() *ProviderCache {
	return &ProviderCache{cache: make(map[string]Provider)}
}

// GetOrCreate returns the cached Provider for key, constructing and
// storing one via cfg if absent.
func (c *ProviderCache) GetOrCreate(key ClientKey, cfg Config) (Provider, error) {
	hash := key.hash()

	c.mu.RLock()
	if p, ok := c.cache[hash]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[hash]; ok {
		return p, nil
	}

	provider, err := NewProvider(key.Provider, cfg)
	if err != nil {
		return nil, err
	}
	c.cache[hash] = provider
	return provider, nil
}

// Set stores provider under key directly, useful for injecting a fake in
// tests.
func (c *ProviderCache) Set(key ClientKey, provider Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key.hash()] = provider
}
