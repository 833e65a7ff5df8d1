package repository

import (
	"context"
	"sync"
	"time"

	"slotbook/internal/models"
)

// MemoryVerificationStore is a process-local store for single-instance deployments and tests.
type MemoryVerificationStore struct {
	mu         sync.Mutex
	records    map[string]*models.EmailVerification
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemoryVerificationStore() *MemoryVerificationStore {
	return &MemoryVerificationStore{
		records:    make(map[string]*models.EmailVerification),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryVerificationStore) SaveCode(_ context.Context, email, code string, now time.Time, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[email] = &models.EmailVerification{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (r *MemoryVerificationStore) CheckCode(_ context.Context, email, code string, now time.Time, verifiedTTL time.Duration) (models.VerificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[email]
	if !ok || rec.Verified || rec.Code == "" {
		return models.VerificationNotFound, nil
	}
	if rec.Expired(now) {
		delete(r.records, email)
		return models.VerificationExpired, nil
	}
	if rec.Code != code {
		return models.VerificationInvalid, nil
	}

	rec.Code = ""
	rec.Verified = true
	rec.ExpiresAt = now.Add(verifiedTTL)
	return models.VerificationVerified, nil
}

func (r *MemoryVerificationStore) Consume(_ context.Context, email string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[email]
	if !ok || !rec.Verified {
		return false, nil
	}
	delete(r.records, email)
	return !rec.Expired(now), nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryVerificationStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
