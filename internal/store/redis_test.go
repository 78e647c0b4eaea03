package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Runs against a live server when REDIS_URL is set.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	r, err := NewRedis(context.Background(), url)
	require.NoError(t, err)
	defer r.Close()

	s := WithNamespace(r, "dispatcher-test-"+time.Now().Format("150405.000000"))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "auto:campaign:a", []byte("1")))
	ok, err := s.SetIfAbsent(ctx, "auto:tick:lock", []byte("t"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SetIfAbsent(ctx, "auto:tick:lock", []byte("u"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	deleted, err := s.DeleteIfEqual(ctx, "auto:tick:lock", []byte("t"))
	require.NoError(t, err)
	require.True(t, deleted)

	keys, err := s.Scan(ctx, "auto:")
	require.NoError(t, err)
	require.Equal(t, []string{"auto:campaign:a"}, keys)
	require.NoError(t, s.Delete(ctx, "auto:campaign:a"))
}
