package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

type verificationConsumer interface {
	Consume(ctx context.Context, email string) (bool, error)
}

type scheduleSource interface {
	ScheduleFor(ctx context.Context, date string) ([]string, error)
}

// LinkGenerator produces a locally generated meeting link that cannot fail.
type LinkGenerator interface {
	Link() string
}

type BookingDeps struct {
	Ledger       domain.BookingLedger
	Schedule     scheduleSource
	Verification verificationConsumer
	Meetings     domain.MeetingProvider
	Placeholder  LinkGenerator
	Notifiers    []domain.BookingNotifier
	EventBus     domain.EventPublisher
	Outbox       domain.OutboxEnqueuer
}

// BookingService turns a verified request into a committed booking. Only the
// slot reservation can fail the request; everything after it is best effort.
type BookingService struct {
	deps           BookingDeps
	schedule       config.ScheduleConfig
	meetingTimeout time.Duration
	phoneRegion    string
	brand          string
	logger         *zerolog.Logger
	now            func() time.Time
}

func NewBookingService(deps BookingDeps, schedule config.ScheduleConfig, meetingTimeout time.Duration, brand string, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if schedule.MaxBookingDays <= 0 {
		schedule.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if schedule.MeetingDuration <= 0 {
		schedule.MeetingDuration = models.DefaultMeetingDuration
	}
	if meetingTimeout <= 0 {
		meetingTimeout = 10 * time.Second
	}
	return &BookingService{
		deps:           deps,
		schedule:       schedule,
		meetingTimeout: meetingTimeout,
		phoneRegion:    DefaultPhoneRegion,
		brand:          brand,
		logger:         logger,
		now:            time.Now,
	}
}

// Book runs one booking attempt.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	booking, err := s.prepare(req)
	if err != nil {
		metrics.IncBooking("invalid")
		return nil, err
	}
	log := s.logger.With().Str("date", booking.Date).Str("slot", booking.Slot).Str("email", booking.Email).Logger()

	verified, err := s.deps.Verification.Consume(ctx, booking.Email)
	if err != nil {
		metrics.IncBooking("error")
		return nil, err
	}
	if !verified {
		metrics.IncBooking("unverified")
		return nil, ErrEmailNotVerified
	}

	offered, err := s.deps.Schedule.ScheduleFor(ctx, booking.Date)
	if err != nil {
		metrics.IncBooking("error")
		return nil, err
	}
	if !slices.Contains(offered, booking.Slot) {
		metrics.IncBooking("not_offered")
		return nil, ErrSlotNotOffered
	}

	booking.MeetingLink = s.deps.Placeholder.Link()
	if err := s.deps.Ledger.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			metrics.IncBooking("conflict")
			log.Info().Msg("slot already taken")
			return nil, ErrSlotTaken
		}
		metrics.IncBooking("error")
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	log = log.With().Int64("booking_id", booking.ID).Logger()
	log.Info().Msg("slot reserved")

	// the booking is committed; nothing below may fail the request
	sideCtx := context.WithoutCancel(ctx)
	s.provisionMeeting(sideCtx, booking, &log)
	s.notify(sideCtx, booking, &log)
	s.publishEvent(booking, &log)
	s.enqueue(sideCtx, booking, models.TaskSheetsAppend, "", &log)

	metrics.IncBooking("committed")
	return booking, nil
}

func (s *BookingService) prepare(req BookingRequest) (*models.Booking, error) {
	req.sanitize()
	if day, err := models.NormalizeDate(req.Date, s.schedule.Location()); err == nil {
		req.Date = day
	}
	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	phone, err := normalizePhone(req.Phone, s.phoneRegion)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(req.Date, req.Slot); err != nil {
		return nil, err
	}

	return &models.Booking{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        phone,
		CustomerType: models.CustomerType(req.CustomerType),
		Description:  req.Description,
		Date:         req.Date,
		Slot:         req.Slot,
	}, nil
}

// checkWindow rejects slots that already started or lie beyond MaxBookingDays.
func (s *BookingService) checkWindow(date, slot string) error {
	loc := s.schedule.Location()
	now := s.now().In(loc)

	start, err := models.SlotStart(date, slot, loc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if start.Before(now) {
		return fmt.Errorf("%w: date is in the past", ErrValidation)
	}

	today, _ := models.ParseDate(models.DayKey(now))
	last := models.DayKey(today.AddDate(0, 0, s.schedule.MaxBookingDays))
	if date > last {
		return fmt.Errorf("%w: date is more than %d days ahead", ErrValidation, s.schedule.MaxBookingDays)
	}
	return nil
}

func (s *BookingService) provisionMeeting(ctx context.Context, booking *models.Booking, log *zerolog.Logger) {
	if s.deps.Meetings == nil {
		return
	}
	start, err := booking.StartsAt(s.schedule.Location())
	if err != nil {
		log.Error().Err(err).Msg("cannot compute meeting start")
		return
	}

	mctx, cancel := context.WithTimeout(ctx, s.meetingTimeout)
	meeting, err := s.deps.Meetings.Provision(mctx, models.MeetingRequest{
		Topic:    fmt.Sprintf("%s: %s", s.brand, booking.Name),
		Start:    start,
		Duration: s.schedule.MeetingDuration,
	})
	cancel()
	if err != nil {
		metrics.IncGatewayFailure("meeting")
		log.Warn().Err(err).Msg("meeting provisioning failed, keeping placeholder link")
		return
	}
	if meeting.Placeholder || meeting.JoinURL == "" {
		return
	}

	if err := s.deps.Ledger.SetMeetingLink(ctx, booking.ID, meeting.JoinURL); err != nil {
		log.Error().Err(err).Msg("failed to store meeting link, keeping placeholder link")
		return
	}
	booking.MeetingLink = meeting.JoinURL
}

func (s *BookingService) notify(ctx context.Context, booking *models.Booking, log *zerolog.Logger) {
	for _, n := range s.deps.Notifiers {
		if err := n.NotifyBooked(ctx, booking); err != nil {
			metrics.IncGatewayFailure(n.Name())
			log.Error().Err(err).Str("notifier", n.Name()).Msg("booking notification failed")
			s.enqueue(ctx, booking, models.TaskNotifyRetry, n.Name(), log)
		}
	}
}

func (s *BookingService) publishEvent(booking *models.Booking, log *zerolog.Logger) {
	if s.deps.EventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:    booking.ID,
		Date:         booking.Date,
		Slot:         booking.Slot,
		Name:         booking.Name,
		Email:        booking.Email,
		CustomerType: string(booking.CustomerType),
		MeetingLink:  booking.MeetingLink,
		CreatedAt:    booking.CreatedAt,
	}

	if err := s.deps.EventBus.PublishJSON(events.EventBookingCreated, payload); err != nil {
		log.Error().Err(err).Str("event_type", events.EventBookingCreated).Msg("publish event error")
	}
}

func (s *BookingService) enqueue(ctx context.Context, booking *models.Booking, taskType, target string, log *zerolog.Logger) {
	if s.deps.Outbox == nil {
		return
	}
	if err := s.deps.Outbox.EnqueueTask(ctx, taskType, booking, target); err != nil {
		log.Error().Err(err).Str("task", taskType).Msg("outbox enqueue error")
	}
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid booking id", ErrValidation)
	}
	return s.deps.Ledger.GetBooking(ctx, id)
}

func (s *BookingService) ListBookingsByDate(ctx context.Context, date string) ([]models.Booking, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.deps.Ledger.ListBookingsByDate(ctx, date)
}

// GetBookingsByDateRange lists bookings in [from, to]; both bounds are day keys.
func (s *BookingService) GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error) {
	if _, err := models.ParseDate(from); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrValidation, err)
	}
	if _, err := models.ParseDate(to); err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrValidation, err)
	}
	if to < from {
		return nil, fmt.Errorf("%w: to is before from", ErrValidation)
	}
	return s.deps.Ledger.GetBookingsByDateRange(ctx, from, to)
}
