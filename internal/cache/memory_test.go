package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 16, time.Minute)
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "badge:B1", []byte("v1"), 0))

	value, ok, err := s.Get(ctx, "badge:B1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	_, ok, err = s.Get(ctx, "badge:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 16, 0)
	ctx := t.Context()

	now := time.Now()
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, s.Set(ctx, "forever", []byte("y"), 0))

	now = now.Add(2 * time.Second)

	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 16, time.Minute)
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	deleted, err := s.Delete(ctx, "a", "b", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = s.Delete(ctx, "a", "b", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestMemoryStore_CapacityEviction(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 2, 0)
	ctx := t.Context()

	now := time.Now()
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "soon", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "later", []byte("2"), time.Hour))

	// Full store: the entry closest to expiry goes first.
	require.NoError(t, s.Set(ctx, "new", []byte("3"), time.Hour))

	_, ok, err := s.Get(ctx, "soon")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "later")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = s.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_CapacitySweepsExpiredFirst(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 2, 0)
	ctx := t.Context()

	now := time.Now()
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "expired", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "live", []byte("2"), time.Hour))

	now = now.Add(2 * time.Second)

	require.NoError(t, s.Set(ctx, "new", []byte("3"), time.Hour))

	_, ok, err := s.Get(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok, "live entry must survive when an expired one can be swept")

	_, ok, err = s.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_KeysAndLen(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 16, 0)
	ctx := t.Context()

	now := time.Now()
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Hour))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	now = now.Add(2 * time.Second)

	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, keys)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_Flush(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("memory", 16, 0)
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Flush(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.NoError(t, s.Close())
}
