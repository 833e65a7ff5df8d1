package repository

import (
	"context"
	"testing"
	"time"

	"slotbook/internal/config"

	"github.com/stretchr/testify/assert"
)

func configFor(addr string) config.RedisConfig {
	return config.RedisConfig{Address: addr}
}

func TestMemoryRateLimit(t *testing.T) {
	repo := NewMemoryVerificationStore()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	key := "send:a@example.com"
	allowed, _ := repo.CheckRateLimit(ctx, key, 2, time.Second)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
	assert.False(t, allowed)

	allowed, _ = repo.CheckRateLimit(ctx, "send:other@example.com", 2, time.Second)
	assert.True(t, allowed, "limits are per key")

	now = now.Add(time.Second + time.Millisecond)
	allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
	assert.True(t, allowed)
}
