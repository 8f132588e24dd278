package planner

import (
	"container/list"
	"testing"
	"time"

	"github.com/dagplan/dagplan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentCacheGetMissByDefault(t *testing.T) {
	t.Parallel()
	c := newAgentCache()
	_, ok := c.get("ghost")
	assert.False(t, ok)
}

func TestAgentCacheSetThenGet(t *testing.T) {
	t.Parallel()
	c := newAgentCache()
	c.set("writer", store.Agent{Name: "writer", Model: "gpt-4o"})

	got, ok := c.get("writer")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", got.Model)
}

func TestAgentCacheInvalidateRemovesEntry(t *testing.T) {
	t.Parallel()
	c := newAgentCache()
	c.set("writer", store.Agent{Name: "writer"})
	c.invalidate("writer")

	_, ok := c.get("writer")
	assert.False(t, ok)
}

func TestAgentCacheEvictsLeastRecentlyUsedOverCapacity(t *testing.T) {
	t.Parallel()
	c := &agentCache{ttl: time.Minute, cap: 2, ll: list.New(), index: make(map[string]*list.Element)}

	c.set("a", store.Agent{Name: "a"})
	c.set("b", store.Agent{Name: "b"})
	// touch "a" so "b" becomes the least-recently-used entry.
	_, _ = c.get("a")
	c.set("c", store.Agent{Name: "c"})

	_, ok := c.get("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestAgentCacheExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	c := &agentCache{ttl: time.Millisecond, cap: 50, ll: list.New(), index: make(map[string]*list.Element)}
	c.set("writer", store.Agent{Name: "writer"})

	time.Sleep(5 * time.Millisecond)

	_, ok := c.get("writer")
	assert.False(t, ok)
}
