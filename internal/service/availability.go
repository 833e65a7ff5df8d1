package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

type availabilityStore interface {
	domain.OverrideStore
	BookedSlots(ctx context.Context, date string) ([]string, error)
	ListOverrides(ctx context.Context) ([]models.AvailabilityOverride, error)
}

// AvailabilityService answers which slots are still open on a day.
type AvailabilityService struct {
	store    availabilityStore
	schedule config.ScheduleConfig
	loc      *time.Location
	events   domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAvailabilityService(store availabilityStore, schedule config.ScheduleConfig, logger *zerolog.Logger) *AvailabilityService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if len(schedule.WeekdaySlots) == 0 {
		schedule.WeekdaySlots = models.DefaultWeekdaySlots
	}
	if len(schedule.WeekendSlots) == 0 {
		schedule.WeekendSlots = models.DefaultWeekendSlots
	}
	return &AvailabilityService{store: store, schedule: schedule, loc: schedule.Location(), logger: logger}
}

// SetPublisher makes SetOverride announce availability_updated events.
func (s *AvailabilityService) SetPublisher(p domain.EventPublisher) {
	s.events = p
}

// dayKey accepts a day key or an RFC3339 timestamp, read in the schedule timezone.
func (s *AvailabilityService) dayKey(raw string) (string, error) {
	date, err := models.NormalizeDate(raw, s.loc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return date, nil
}

// ScheduleFor returns the configured slots for a day before bookings are removed.
// An override for the exact day replaces the weekday/weekend default.
func (s *AvailabilityService) ScheduleFor(ctx context.Context, date string) ([]string, error) {
	date, err := s.dayKey(date)
	if err != nil {
		return nil, err
	}
	day, err := models.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	override, err := s.store.GetOverride(ctx, date)
	switch {
	case err == nil:
		return append([]string(nil), override.Slots...), nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("load override: %w", err)
	}

	if models.IsWeekend(day) {
		return append([]string(nil), s.schedule.WeekendSlots...), nil
	}
	return append([]string(nil), s.schedule.WeekdaySlots...), nil
}

// Resolve returns the open slots for date in configured order.
func (s *AvailabilityService) Resolve(ctx context.Context, date string) ([]string, error) {
	date, err := s.dayKey(date)
	if err != nil {
		return nil, err
	}
	slots, err := s.ScheduleFor(ctx, date)
	if err != nil {
		return nil, err
	}

	booked, err := s.store.BookedSlots(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	open := make([]string, 0, len(slots))
	for _, slot := range slots {
		if _, ok := taken[slot]; !ok {
			open = append(open, slot)
		}
	}
	return open, nil
}

// ResolveMany resolves each date independently; the first failure aborts.
func (s *AvailabilityService) ResolveMany(ctx context.Context, dates []string) (map[string][]string, error) {
	out := make(map[string][]string, len(dates))
	for _, date := range dates {
		slots, err := s.Resolve(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", date, err)
		}
		out[date] = slots
	}
	return out, nil
}

// SetOverride validates and upserts the slot list for a day.
func (s *AvailabilityService) SetOverride(ctx context.Context, date string, slots []string) (*models.AvailabilityOverride, error) {
	date, err := s.dayKey(date)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		return nil, fmt.Errorf("%w: slots are required", ErrValidation)
	}
	if err := models.ValidateSlots(slots); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	override := &models.AvailabilityOverride{Date: date, Slots: slots}
	if err := s.store.UpsertOverride(ctx, override); err != nil {
		return nil, err
	}
	s.logger.Info().Str("date", date).Strs("slots", slots).Msg("availability override saved")

	if s.events != nil {
		payload := events.AvailabilityEventPayload{Date: date, Slots: slots}
		if err := s.events.PublishJSON(events.EventAvailabilityUpdated, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", events.EventAvailabilityUpdated).Msg("publish event error")
		}
	}
	return override, nil
}

// Overrides lists every stored per-day schedule, ordered by date.
func (s *AvailabilityService) Overrides(ctx context.Context) ([]models.AvailabilityOverride, error) {
	overrides, err := s.store.ListOverrides(ctx)
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = []models.AvailabilityOverride{}
	}
	return overrides, nil
}

// Seed upserts a batch of overrides, used at startup.
func (s *AvailabilityService) Seed(ctx context.Context, overrides []models.AvailabilityOverride) error {
	for _, o := range overrides {
		if _, err := s.SetOverride(ctx, o.Date, o.Slots); err != nil {
			return fmt.Errorf("seed %s: %w", o.Date, err)
		}
	}
	return nil
}
