package repository

import (
	"context"
	"sync/atomic"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// primaryStore is what a failover primary must provide.
type primaryStore interface {
	domain.VerificationStore
	domain.SendThrottle
}

// Throttled pairs a store that has no counter of its own (sql) with one that does.
type Throttled struct {
	domain.VerificationStore
	domain.SendThrottle
}

// FailoverVerificationStore serves from the primary (redis) and switches to the
// fallback (sql or memory) on error, probing the primary again after a minute.
// Codes issued on one side are not visible on the other.
type FailoverVerificationStore struct {
	primary   primaryStore
	fallback  primaryStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverVerificationStore(primary, fallback primaryStore, logger *zerolog.Logger) *FailoverVerificationStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverVerificationStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverVerificationStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.UnixMilli(r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverVerificationStore) observe(op string, err error) {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Str("op", op).Msg("Primary verification store recovered")
		}
		return
	}
	r.logger.Error().Err(err).Str("op", op).Msg("Primary verification store failed, falling back")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixMilli())
}

func (r *FailoverVerificationStore) SaveCode(ctx context.Context, email, code string, now time.Time, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveCode(ctx, email, code, now, ttl)
		r.observe("save_code", err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SaveCode(ctx, email, code, now, ttl)
}

func (r *FailoverVerificationStore) CheckCode(ctx context.Context, email, code string, now time.Time, verifiedTTL time.Duration) (models.VerificationResult, error) {
	if r.usePrimary() {
		res, err := r.primary.CheckCode(ctx, email, code, now, verifiedTTL)
		r.observe("check_code", err)
		if err == nil {
			return res, nil
		}
	}
	return r.fallback.CheckCode(ctx, email, code, now, verifiedTTL)
}

func (r *FailoverVerificationStore) Consume(ctx context.Context, email string, now time.Time) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.Consume(ctx, email, now)
		r.observe("consume", err)
		if err == nil {
			return ok, nil
		}
	}
	return r.fallback.Consume(ctx, email, now)
}

func (r *FailoverVerificationStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.observe("rate_limit", err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
