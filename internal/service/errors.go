package service

import (
	"errors"

	"slotbook/internal/database"
)

var (
	// ErrValidation is wrapped with the offending field.
	ErrValidation       = errors.New("validation failed")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrSlotNotOffered   = errors.New("slot is not offered on this date")
	ErrSlotTaken        = database.ErrSlotTaken
	ErrNotFound         = database.ErrNotFound
	ErrTooManyRequests  = errors.New("too many verification requests")

	ErrCodeInvalid  = errors.New("invalid verification code")
	ErrCodeExpired  = errors.New("verification code has expired")
	ErrCodeNotFound = errors.New("no verification code requested for this email")
)
