package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/models"

	sq "github.com/Masterminds/squirrel"
)

// VerificationStore keeps email verification records in the email_verifications table.
type VerificationStore struct {
	db *DB
}

func NewVerificationStore(db *DB) *VerificationStore {
	return &VerificationStore{db: db}
}

// SaveCode replaces whatever record the email had with a fresh pending code.
func (s *VerificationStore) SaveCode(ctx context.Context, email, code string, now time.Time, ttl time.Duration) error {
	expiresAt := now.Add(ttl)
	_, err := s.db.exec(ctx, s.db.sb.Insert("email_verifications").
		Columns("email", "code", "verified", "expires_at").
		Values(email, code, false, expiresAt.UnixMilli()).
		Suffix("ON CONFLICT(email) DO UPDATE SET code = excluded.code, verified = excluded.verified, expires_at = excluded.expires_at"))
	if err != nil {
		return fmt.Errorf("failed to save verification code: %w", err)
	}
	return nil
}

// CheckCode marks the email verified for verifiedTTL when code matches a
// pending, unexpired record. A mismatch leaves the record untouched.
func (s *VerificationStore) CheckCode(ctx context.Context, email, code string, now time.Time, verifiedTTL time.Duration) (models.VerificationResult, error) {
	verifiedUntil := now.Add(verifiedTTL)
	res, err := s.db.exec(ctx, s.db.sb.Update("email_verifications").
		Set("verified", true).
		Set("code", "").
		Set("expires_at", verifiedUntil.UnixMilli()).
		Where(sq.Eq{"email": email, "code": code, "verified": false}).
		Where(sq.NotEq{"code": ""}).
		Where(sq.GtOrEq{"expires_at": now.UnixMilli()}))
	if err != nil {
		return "", fmt.Errorf("failed to verify code: %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	} else if rows == 1 {
		return models.VerificationVerified, nil
	}

	rec, err := s.get(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return models.VerificationNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if rec.Verified || rec.Code == "" {
		return models.VerificationNotFound, nil
	}
	if rec.Expired(now) {
		if _, err := s.db.exec(ctx, s.db.sb.Delete("email_verifications").
			Where(sq.Eq{"email": email}).
			Where(sq.Lt{"expires_at": now.UnixMilli()})); err != nil {
			return "", fmt.Errorf("failed to delete expired code: %w", err)
		}
		return models.VerificationExpired, nil
	}
	return models.VerificationInvalid, nil
}

// Consume deletes a verified, unexpired record and reports whether it existed.
func (s *VerificationStore) Consume(ctx context.Context, email string, now time.Time) (bool, error) {
	res, err := s.db.exec(ctx, s.db.sb.Delete("email_verifications").
		Where(sq.Eq{"email": email, "verified": true}).
		Where(sq.GtOrEq{"expires_at": now.UnixMilli()}))
	if err != nil {
		return false, fmt.Errorf("failed to consume verification: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Ping lets the failover store probe the database.
func (s *VerificationStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *VerificationStore) get(ctx context.Context, email string) (*models.EmailVerification, error) {
	row, err := s.db.queryRow(ctx, s.db.sb.Select("email", "code", "verified", "expires_at").
		From("email_verifications").
		Where(sq.Eq{"email": email}))
	if err != nil {
		return nil, err
	}

	var (
		rec       models.EmailVerification
		expiresAt int64
	)
	if err := row.Scan(&rec.Email, &rec.Code, &rec.Verified, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load verification: %w", err)
	}
	rec.ExpiresAt = time.UnixMilli(expiresAt)
	return &rec, nil
}
