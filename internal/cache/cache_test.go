package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New(8)
	_, ok := c.Get("vehicles/list/all")
	assert.False(t, ok)

	assert.True(t, c.Set("vehicles/list/all", []string{"a"}, c.Version()))
	v, ok := c.Get("vehicles/list/all")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestInvalidatePrefixOnlyTouchesSegment(t *testing.T) {
	c := New(8)
	v := c.Version()
	c.Set(Key("vehicles", "list", "all"), 1, v)
	c.Set(Key("vehicles", "list", "available"), 2, v)
	c.Set(Key("vehicles", "item", "42"), 3, v)
	c.Set(Key("vehicles", "listing"), 4, v)

	c.InvalidatePrefix(Key("vehicles", "list"))

	_, ok := c.Get(Key("vehicles", "list", "all"))
	assert.False(t, ok)
	_, ok = c.Get(Key("vehicles", "list", "available"))
	assert.False(t, ok)
	_, ok = c.Get(Key("vehicles", "item", "42"))
	assert.True(t, ok)
	_, ok = c.Get(Key("vehicles", "listing"))
	assert.True(t, ok, "sibling key sharing a string prefix must survive")
}

func TestSetAfterInvalidationIsDropped(t *testing.T) {
	c := New(8)
	stale := c.Version()
	c.Invalidate(Key("vehicles", "item", "1"))

	assert.False(t, c.Set(Key("vehicles", "item", "1"), "old", stale))
	_, ok := c.Get(Key("vehicles", "item", "1"))
	assert.False(t, ok)
}

func TestEvictionForgetsKeys(t *testing.T) {
	c := New(2)
	v := c.Version()
	c.Set("a", 1, v)
	c.Set("b", 2, v)
	c.Set("c", 3, v) // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Len(t, c.keys, 2)
}

func TestOnLookupHook(t *testing.T) {
	c := New(2)
	var hits, misses int
	c.OnLookup = func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}
	c.Set("a", 1, c.Version())
	c.Get("a")
	c.Get("b")
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestClear(t *testing.T) {
	c := New(4)
	c.Set("a", 1, c.Version())
	c.Clear()
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Empty(t, c.keys)
}
