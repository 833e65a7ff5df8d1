package repository

import (
	"context"
	"fmt"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/models"

	"github.com/redis/go-redis/v9"
)

// expiredGrace keeps a lapsed code around long enough to answer "expired"
// instead of "not found".
const expiredGrace = 15 * time.Minute

// checkScript: KEYS[1]=record, ARGV = code, now_ms, verified_until_ms, key_ttl_ms.
var checkScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'code', 'expires_at', 'verified')
local code, expires, verified = rec[1], rec[2], rec[3]
if not code or verified == '1' then
  return 'not_found'
end
if tonumber(ARGV[2]) > tonumber(expires) then
  redis.call('DEL', KEYS[1])
  return 'expired'
end
if code ~= ARGV[1] then
  return 'invalid'
end
redis.call('HDEL', KEYS[1], 'code')
redis.call('HSET', KEYS[1], 'verified', '1', 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 'verified'
`)

// consumeScript: KEYS[1]=record, ARGV[1]=now_ms.
var consumeScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'verified', 'expires_at')
if rec[1] ~= '1' then
  return 0
end
redis.call('DEL', KEYS[1])
if tonumber(ARGV[1]) > tonumber(rec[2]) then
  return 0
end
return 1
`)

type RedisVerificationStore struct {
	client *redis.Client
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisVerificationStore(client *redis.Client) *RedisVerificationStore {
	return &RedisVerificationStore{client: client}
}

func verificationKey(email string) string {
	return "verification:" + email
}

func (r *RedisVerificationStore) SaveCode(ctx context.Context, email, code string, now time.Time, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := verificationKey(email)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "code", code, "expires_at", now.Add(ttl).UnixMilli(), "verified", "0")
	pipe.PExpire(ctx, key, ttl+expiredGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save verification code in redis: %w", err)
	}
	return nil
}

func (r *RedisVerificationStore) CheckCode(ctx context.Context, email, code string, now time.Time, verifiedTTL time.Duration) (models.VerificationResult, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	res, err := checkScript.Run(ctx, r.client, []string{verificationKey(email)},
		code,
		now.UnixMilli(),
		now.Add(verifiedTTL).UnixMilli(),
		verifiedTTL.Milliseconds(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("failed to check verification code in redis: %w", err)
	}
	return models.VerificationResult(res), nil
}

func (r *RedisVerificationStore) Consume(ctx context.Context, email string, now time.Time) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := consumeScript.Run(ctx, r.client, []string{verificationKey(email)}, now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to consume verification in redis: %w", err)
	}
	return n == 1, nil
}

// CheckRateLimit counts calls per key in a fixed window.
func (r *RedisVerificationStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key = "rate_limit:" + key
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close is nil-safe.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
