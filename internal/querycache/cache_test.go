package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(cfg Config) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(cfg)
	c.now = clock.now
	return c, clock
}

func TestCache_SetGetDelete(t *testing.T) {
	c, _ := newTestCache(Config{})

	_, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, "fallback", c.GetOrDefault("missing", "fallback"))

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, c.Has("a"))
	assert.Equal(t, 1, c.GetOrDefault("a", 0))

	c.Delete("a")
	assert.False(t, c.Has("a"))
	c.Delete("a")
	assert.Equal(t, 0, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(Config{TTL: time.Minute})
	c.Set("a", "x")
	c.SetTTL("b", "y", time.Hour)

	clock.t = clock.t.Add(59 * time.Second)
	assert.True(t, c.Has("a"))

	clock.t = clock.t.Add(time.Second)
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.Equal(t, []string{"b"}, c.Keys())
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(Config{MaxEntries: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	assert.Equal(t, []string{"a", "c"}, c.Keys())
	assert.False(t, c.Has("b"))
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache(Config{})
	c.Set("b", 2)
	c.Set("a", 1)
	assert.Equal(t, []string{"a", "b"}, c.Keys())

	c.Clear()
	assert.Empty(t, c.Keys())
	assert.Equal(t, 0, c.Len())

	c.Set("a", 3)
	assert.Equal(t, 3, c.GetOrDefault("a", nil))
}

func TestKey(t *testing.T) {
	k1, err := Key(`query{users{id}}`, "", map[string]any{"x": 1})
	require.NoError(t, err)
	k2, err := Key("query { users { id } }", "", map[string]any{"x": 1})
	require.NoError(t, err)
	k3, err := Key(`query{users{id}}`, "", map[string]any{"x": 2})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	_, err = Key(`query{`, "", nil)
	assert.Error(t, err)
}
