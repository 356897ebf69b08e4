package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*DedupeStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDedupeStore(client, time.Hour), mr
}

func TestDedupeStore_ClaimOnce(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "n-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Hour, mr.TTL(dedupeKeyPrefix+"n-1"))
}

func TestDedupeStore_ReleaseAllowsRetry(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.Claim(ctx, "n-2")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "n-2"))

	ok, err := s.Claim(ctx, "n-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupeStore_ExpiresAfterTTL(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.Claim(ctx, "n-3")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	ok, err := s.Claim(ctx, "n-3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupeStore_RedisDown(t *testing.T) {
	s, mr := setupStore(t)
	mr.Close()

	_, err := s.Claim(context.Background(), "n-4")
	assert.Error(t, err)
}
