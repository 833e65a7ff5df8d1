package repository

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	codeTTL     = 10 * time.Minute
	verifiedTTL = 30 * time.Minute
)

// every store must agree on these outcomes
func runVerificationContract(t *testing.T, newStore func(t *testing.T) domain.VerificationStore) {
	ctx := context.Background()
	t0 := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	t.Run("CorrectCodeBeforeExpiry", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "a@example.com", "123456", t0, codeTTL))

		res, err := store.CheckCode(ctx, "a@example.com", "123456", t0.Add(9*time.Minute+59*time.Second), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationVerified, res)
	})

	t.Run("CorrectCodeAfterExpiry", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "b@example.com", "123456", t0, codeTTL))

		res, err := store.CheckCode(ctx, "b@example.com", "123456", t0.Add(10*time.Minute+time.Second), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationExpired, res)
	})

	t.Run("WrongCode", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "c@example.com", "123456", t0, codeTTL))

		res, err := store.CheckCode(ctx, "c@example.com", "000000", t0.Add(time.Minute), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationInvalid, res)

		res, err = store.CheckCode(ctx, "c@example.com", "123456", t0.Add(2*time.Minute), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationVerified, res)
	})

	t.Run("NoCode", func(t *testing.T) {
		store := newStore(t)
		res, err := store.CheckCode(ctx, "nobody@example.com", "123456", t0, verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationNotFound, res)
	})

	t.Run("ConsumeOnce", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "d@example.com", "123456", t0, codeTTL))

		ok, err := store.Consume(ctx, "d@example.com", t0)
		require.NoError(t, err)
		assert.False(t, ok, "unverified email cannot be consumed")

		_, err = store.CheckCode(ctx, "d@example.com", "123456", t0, verifiedTTL)
		require.NoError(t, err)

		ok, err = store.Consume(ctx, "d@example.com", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Consume(ctx, "d@example.com", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ConcurrentConsumeSucceedsOnce", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "g@example.com", "123456", t0, codeTTL))
		res, err := store.CheckCode(ctx, "g@example.com", "123456", t0, verifiedTTL)
		require.NoError(t, err)
		require.Equal(t, models.VerificationVerified, res)

		const workers = 50
		var (
			wg      sync.WaitGroup
			wins    atomic.Int32
			errs    atomic.Int32
			release = make(chan struct{})
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-release
				ok, err := store.Consume(ctx, "g@example.com", t0.Add(time.Minute))
				if err != nil {
					errs.Add(1)
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		close(release)
		wg.Wait()

		if n := errs.Load(); n != 0 {
			t.Fatalf("%d concurrent consumes returned an error", n)
		}
		if n := wins.Load(); n != 1 {
			t.Fatalf("%d concurrent consumes succeeded, want exactly 1", n)
		}
	})

	t.Run("ConsumeAfterVerifiedWindow", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "e@example.com", "123456", t0, codeTTL))
		_, err := store.CheckCode(ctx, "e@example.com", "123456", t0, verifiedTTL)
		require.NoError(t, err)

		ok, err := store.Consume(ctx, "e@example.com", t0.Add(verifiedTTL+time.Second))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ResendReplacesCode", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCode(ctx, "f@example.com", "111111", t0, codeTTL))
		require.NoError(t, store.SaveCode(ctx, "f@example.com", "222222", t0.Add(time.Minute), codeTTL))

		res, err := store.CheckCode(ctx, "f@example.com", "111111", t0.Add(2*time.Minute), verifiedTTL)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationInvalid, res)
	})
}

func TestMemoryVerificationContract(t *testing.T) {
	runVerificationContract(t, func(t *testing.T) domain.VerificationStore {
		return NewMemoryVerificationStore()
	})
}

func TestRedisVerificationContract(t *testing.T) {
	runVerificationContract(t, func(t *testing.T) domain.VerificationStore {
		s := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedisVerificationStore(client)
	})
}

func TestSQLVerificationContract(t *testing.T) {
	runVerificationContract(t, func(t *testing.T) domain.VerificationStore {
		logger := zerolog.New(io.Discard)
		db, err := database.NewDB(":memory:", &logger)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return database.NewVerificationStore(db)
	})
}
