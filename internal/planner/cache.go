package planner

import (
	"container/list"
	"sync"
	"time"

	"github.com/dagplan/dagplan/internal/store"
)

// Cached agent resolutions live for 60s, bounded to the 50 most recently
// used names. No code path calls invalidate, so a change to an agent's
// active status is seen only once its entry expires or is evicted.
const (
	agentCacheTTL = 60 * time.Second
	agentCacheCap = 50
)

// agentCache caches active-agent lookups by name, generalized from
// internal/agent/provider_cache.go's ProviderCache ("cache a provider
// instance" -> "cache a resolved Agent row") with the one addition that
// file lacks: LRU eviction via container/list, since ProviderCache never
// bounds its map size.
type agentCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	cap   int
	ll    *list.List
	index map[string]*list.Element
}

type agentCacheEntry struct {
	name      string
	agent     store.Agent
	expiresAt time.Time
}

func newAgentCache() *agentCache {
	return &agentCache{
		ttl:   agentCacheTTL,
		cap:   agentCacheCap,
		ll:    list.New(),
		index: make(map[string]*list.Element),
	}
}

// get returns the cached agent for name if present and not expired.
func (c *agentCache) get(name string) (store.Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[name]
	if !ok {
		return store.Agent{}, false
	}
	entry := el.Value.(*agentCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.index, name)
		return store.Agent{}, false
	}
	c.ll.MoveToFront(el)
	return entry.agent, true
}

// set stores agent under name, evicting the least-recently-used entry
// if the cache is at capacity.
func (c *agentCache) set(name string, agent store.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[name]; ok {
		el.Value = &agentCacheEntry{name: name, agent: agent, expiresAt: time.Now().Add(c.ttl)}
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&agentCacheEntry{name: name, agent: agent, expiresAt: time.Now().Add(c.ttl)})
	c.index[name] = el

	if c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*agentCacheEntry).name)
		}
	}
}

// invalidate removes name from the cache.
func (c *agentCache) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[name]; ok {
		c.ll.Remove(el)
		delete(c.index, name)
	}
}
