package templatecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetPutMiss(t *testing.T) {
	ctx := context.Background()
	c := New(1024)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Put(ctx, "a", []byte("hello"))
	b, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), b)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.EntryCount)
}

func TestCache_SecondPutIsNoOp(t *testing.T) {
	ctx := context.Background()
	c := New(1024)
	c.Put(ctx, "a", []byte("first"))
	c.Put(ctx, "a", []byte("second-longer-value"))

	b, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), b)
}

func TestCache_StrictLRUEviction(t *testing.T) {
	ctx := context.Background()
	// room for exactly two 4-byte entries
	c := New(8)
	c.Put(ctx, "a", []byte("aaaa"))
	c.Put(ctx, "b", []byte("bbbb"))

	// touch "a" so "b" becomes least-recently-used
	_, _ = c.Get(ctx, "a")

	c.Put(ctx, "c", []byte("cccc"))

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")

	_, ok = c.Get(ctx, "a")
	assert.True(t, ok, "a was touched more recently and should survive")

	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestCache_EntryLargerThanCapStandsAlone(t *testing.T) {
	ctx := context.Background()
	c := New(4)
	c.Put(ctx, "big", []byte("this-is-way-over-cap"))

	b, ok := c.Get(ctx, "big")
	require.True(t, ok)
	assert.Len(t, b, len("this-is-way-over-cap"))
	assert.Equal(t, int64(1), c.Stats().EntryCount)
}

func TestCache_EntryExactlyAtCapIsSoleResident(t *testing.T) {
	ctx := context.Background()
	c := New(4)
	c.Put(ctx, "exact", []byte("abcd"))

	_, ok := c.Get(ctx, "exact")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().EntryCount)
}
