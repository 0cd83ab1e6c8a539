package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int](WithNow(func() time.Time { return now }))

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry must expire at its deadline")

	now = now.Add(24 * time.Hour)
	v, ok = c.Get("b")
	assert.True(t, ok, "zero ttl never expires")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCacheMaxSize(t *testing.T) {
	c := NewTTLCache[int, string](WithMaxSize(2))
	c.Set(1, "one", 0)
	c.Set(2, "two", 0)
	c.Set(3, "three", 0)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, "three", v)

	c.Set(3, "tres", 0)
	assert.Equal(t, 2, c.Len(), "overwriting does not evict")
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Hour)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}
