package domain

import (
	"context"
	"time"

	"slotbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingLedger persists bookings; CreateBooking fails with database.ErrSlotTaken
// when (date, slot) is already held.
type BookingLedger interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	SetMeetingLink(ctx context.Context, id int64, link string) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	BookedSlots(ctx context.Context, date string) ([]string, error)
	ListBookingsByDate(ctx context.Context, date string) ([]models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error)
}

type OverrideStore interface {
	UpsertOverride(ctx context.Context, override *models.AvailabilityOverride) error
	GetOverride(ctx context.Context, date string) (*models.AvailabilityOverride, error)
}

// VerificationStore holds at most one record per email. Callers pass the clock.
type VerificationStore interface {
	SaveCode(ctx context.Context, email, code string, now time.Time, ttl time.Duration) error
	CheckCode(ctx context.Context, email, code string, now time.Time, verifiedTTL time.Duration) (models.VerificationResult, error)
	Consume(ctx context.Context, email string, now time.Time) (bool, error)
}

type SendThrottle interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type MeetingProvider interface {
	Provision(ctx context.Context, req models.MeetingRequest) (models.Meeting, error)
}

// BookingNotifier is a best-effort side effect run after a booking is stored.
type BookingNotifier interface {
	Name() string
	NotifyBooked(ctx context.Context, booking *models.Booking) error
}

type CodeSender interface {
	SendCode(ctx context.Context, email, code string, ttl time.Duration) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// OutboxEnqueuer defers work for a booking; target names the notifier for notify_retry.
type OutboxEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking, target string) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
}

