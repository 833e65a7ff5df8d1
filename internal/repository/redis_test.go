package repository

import (
	"context"
	"testing"
	"time"

	"slotbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisVerificationStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisVerificationStore(client)
	ctx := context.Background()
	t0 := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	t.Run("RecordLayout", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, "a@example.com", "123456", t0, codeTTL))

		key := "verification:a@example.com"
		assert.Equal(t, "123456", s.HGet(key, "code"))
		assert.Equal(t, "0", s.HGet(key, "verified"))
		assert.Equal(t, codeTTL+expiredGrace, s.TTL(key))

		res, err := repo.CheckCode(ctx, "a@example.com", "123456", t0.Add(time.Minute), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationVerified, res)
		assert.Equal(t, "1", s.HGet(key, "verified"))
		assert.Empty(t, s.HGet(key, "code"))
		assert.Equal(t, verifiedTTL, s.TTL(key))
	})

	t.Run("ExpiredWithinGrace", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, "b@example.com", "123456", t0, codeTTL))
		s.FastForward(codeTTL + time.Second)

		res, err := repo.CheckCode(ctx, "b@example.com", "123456", t0.Add(codeTTL+time.Second), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationExpired, res)
		assert.False(t, s.Exists("verification:b@example.com"))
	})

	t.Run("EvictedAfterGrace", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, "c@example.com", "123456", t0, codeTTL))
		s.FastForward(codeTTL + expiredGrace + time.Second)

		res, err := repo.CheckCode(ctx, "c@example.com", "123456", t0.Add(codeTTL+expiredGrace+time.Second), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationNotFound, res)
	})

	t.Run("VerifiedKeyEvicted", func(t *testing.T) {
		require.NoError(t, repo.SaveCode(ctx, "d@example.com", "123456", t0, codeTTL))
		_, err := repo.CheckCode(ctx, "d@example.com", "123456", t0, verifiedTTL)
		require.NoError(t, err)

		s.FastForward(verifiedTTL + time.Second)
		ok, err := repo.Consume(ctx, "d@example.com", t0.Add(verifiedTTL+time.Second))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "send:e@example.com"
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisVerificationStore(nil)
		_, err := repo.CheckCode(ctx, "a@example.com", "123456", t0, verifiedTTL)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.Close()
		err := repo.SaveCode(ctx, "f@example.com", "123456", t0, codeTTL)
		assert.Error(t, err)
	})
}

func TestNewRedisClient(t *testing.T) {
	s := miniredis.RunT(t)
	client := NewRedisClient(configFor(s.Addr()))
	defer Close(client)

	assert.NoError(t, Ping(context.Background(), client))
}
