package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/metrics"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

var codeSpan = big.NewInt(900000)

// VerificationService issues and checks one-time email codes.
type VerificationService struct {
	store    domain.VerificationStore
	throttle domain.SendThrottle
	sender   domain.CodeSender
	cfg      config.VerificationConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewVerificationService(
	store domain.VerificationStore,
	throttle domain.SendThrottle,
	sender domain.CodeSender,
	cfg config.VerificationConfig,
	logger *zerolog.Logger,
) *VerificationService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = models.DefaultCodeTTL
	}
	if cfg.VerifiedTTL <= 0 {
		cfg.VerifiedTTL = models.DefaultVerifiedTTL
	}
	if cfg.SendLimit <= 0 {
		cfg.SendLimit = models.DefaultSendLimit
	}
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = models.DefaultSendWindow
	}
	return &VerificationService{
		store:    store,
		throttle: throttle,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// GenerateCode returns a uniformly random six digit code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestCode stores a fresh code for email and mails it. Any earlier code is replaced.
func (s *VerificationService) RequestCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: a valid email is required", ErrValidation)
	}

	if s.throttle != nil {
		allowed, err := s.throttle.CheckRateLimit(ctx, "verify_send:"+email, s.cfg.SendLimit, s.cfg.SendWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("verification throttle unavailable, allowing send")
		} else if !allowed {
			metrics.IncVerification("send", "throttled")
			return ErrTooManyRequests
		}
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}
	if err := s.store.SaveCode(ctx, email, code, s.now(), s.cfg.CodeTTL); err != nil {
		return fmt.Errorf("save code: %w", err)
	}

	if err := s.sender.SendCode(ctx, email, code, s.cfg.CodeTTL); err != nil {
		metrics.IncVerification("send", "error")
		return fmt.Errorf("send verification email: %w", err)
	}

	metrics.IncVerification("send", "ok")
	s.logger.Info().Str("email", email).Msg("verification code sent")
	return nil
}

// Verify checks a submitted code. Success marks the email verified for VerifiedTTL.
func (s *VerificationService) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return fmt.Errorf("%w: email and code are required", ErrValidation)
	}

	res, err := s.store.CheckCode(ctx, email, code, s.now(), s.cfg.VerifiedTTL)
	if err != nil {
		return fmt.Errorf("check code: %w", err)
	}
	metrics.IncVerification("verify", string(res))

	switch res {
	case models.VerificationVerified:
		return nil
	case models.VerificationExpired:
		return ErrCodeExpired
	case models.VerificationNotFound:
		return ErrCodeNotFound
	default:
		return ErrCodeInvalid
	}
}

// Consume spends a verified email exactly once.
func (s *VerificationService) Consume(ctx context.Context, email string) (bool, error) {
	ok, err := s.store.Consume(ctx, normalizeEmail(email), s.now())
	if err != nil {
		return false, fmt.Errorf("consume verification: %w", err)
	}
	return ok, nil
}
