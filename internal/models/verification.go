package models

import "time"

// VerificationResult is the outcome of checking a submitted code.
type VerificationResult string

const (
	VerificationVerified VerificationResult = "verified"
	VerificationInvalid  VerificationResult = "invalid"
	VerificationExpired  VerificationResult = "expired"
	// VerificationNotFound means no pending code exists for the email.
	VerificationNotFound VerificationResult = "not_found"
)

type EmailVerification struct {
	Email     string
	Code      string
	Verified  bool
	ExpiresAt time.Time
}

// Expired uses the same boundary everywhere: a record is still valid at exactly ExpiresAt.
func (v *EmailVerification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
