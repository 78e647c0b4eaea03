package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "auto:campaign:c1", []byte(`{"id":"c1"}`)))
	got, err := s.Get(ctx, "auto:campaign:c1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"c1"}`, string(got))

	require.NoError(t, s.Delete(ctx, "auto:campaign:c1"))
	require.NoError(t, s.Delete(ctx, "auto:campaign:c1"))
	_, err = s.Get(ctx, "auto:campaign:c1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.SetIfAbsent(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be re-acquired")

	deleted, err := s.DeleteIfEqual(ctx, "lock", []byte("b"))
	require.NoError(t, err)
	assert.False(t, deleted, "foreign token must not release the lock")

	clock.t = clock.t.Add(2 * time.Minute)
	ok, err = s.SetIfAbsent(ctx, "lock", []byte("c"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be acquirable")

	deleted, err = s.DeleteIfEqual(ctx, "lock", []byte("c"))
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err = s.SetIfAbsent(ctx, "marker", []byte("m"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	clock.t = clock.t.Add(24 * time.Hour)
	got, err = s.Get(ctx, "marker")
	require.NoError(t, err)
	assert.Equal(t, "m", string(got), "zero ttl must never expire")

	require.NoError(t, s.Set(ctx, "auto:campaign:a", []byte("1")))
	require.NoError(t, s.Set(ctx, "auto:campaign:b", []byte("2")))
	require.NoError(t, s.Set(ctx, "accounts:runtime", []byte("{}")))
	keys, err := s.Scan(ctx, "auto:campaign:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"auto:campaign:a", "auto:campaign:b"}, keys)
}

func TestMemoryStore(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.SetClock(clock.now)
	exerciseStore(t, m, clock)
}

func TestBoltStore(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b, err := OpenBolt(filepath.Join(t.TempDir(), "dispatcher.db"))
	require.NoError(t, err)
	defer b.Close()
	b.now = clock.now
	exerciseStore(t, b, clock)
}

func TestNamespaceIsolatesDeployments(t *testing.T) {
	ctx := context.Background()
	shared := NewMemory()
	a := WithNamespace(shared, "prod")
	b := WithNamespace(shared, "staging")

	require.NoError(t, a.Set(ctx, "auto:campaign:active", []byte("c_1")))
	_, err := b.Get(ctx, "auto:campaign:active")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := shared.Get(ctx, "prod:auto:campaign:active")
	require.NoError(t, err)
	assert.Equal(t, "c_1", string(raw))

	keys, err := a.Scan(ctx, "auto:")
	require.NoError(t, err)
	assert.Equal(t, []string{"auto:campaign:active"}, keys)
}
