package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/events"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func book(t *testing.T, db *database.DB, date, slot string) {
	t.Helper()
	require.NoError(t, db.CreateBooking(context.Background(), &models.Booking{
		Name: "Test", Email: "t@example.com", Phone: "+46701234567",
		CustomerType: models.CustomerNew, Date: date, Slot: slot, MeetingLink: "x",
	}))
}

func TestResolveDefaults(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	ctx := context.Background()

	// 2025-12-15 is a Monday, 2025-12-13 a Saturday
	weekday, err := svc.Resolve(ctx, "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultWeekdaySlots, weekday)

	weekend, err := svc.Resolve(ctx, "2025-12-13")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultWeekendSlots, weekend)
}

func TestResolveOverrideAndBookings(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	ctx := context.Background()

	_, err := svc.SetOverride(ctx, "2025-12-16", []string{"16:00", "17:00"})
	require.NoError(t, err)
	book(t, db, "2025-12-16", "16:00")

	slots, err := svc.Resolve(ctx, "2025-12-16")
	require.NoError(t, err)
	assert.Equal(t, []string{"17:00"}, slots)
}

func TestResolveNeverReturnsBookedSlot(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	ctx := context.Background()

	for _, slot := range []string{"09:00", "12:00", "15:00"} {
		book(t, db, "2025-12-17", slot)
	}
	// a booking on another day must not leak
	book(t, db, "2025-12-18", "10:30")

	slots, err := svc.Resolve(ctx, "2025-12-17")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "13:30"}, slots)
}

func TestResolveEmptyOverrideClosesDay(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	ctx := context.Background()

	_, err := svc.SetOverride(ctx, "2025-12-25", []string{})
	require.NoError(t, err)

	slots, err := svc.Resolve(ctx, "2025-12-25")
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestResolveConfiguredSchedule(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{
		WeekdaySlots: []string{"08:00"},
		WeekendSlots: []string{"11:00"},
	}, nil)

	slots, err := svc.Resolve(context.Background(), "2025-12-14")
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00"}, slots)
}

func TestResolveInvalidDate(t *testing.T) {
	svc := NewAvailabilityService(setupDB(t), config.ScheduleConfig{}, nil)

	for _, date := range []string{"", "2025-13-01", "15/12/2025", "2025-12-15 10:00"} {
		_, err := svc.Resolve(context.Background(), date)
		assert.ErrorIs(t, err, ErrValidation, date)
	}
}

func TestResolveTimestampDate(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{Timezone: "Europe/Stockholm"}, nil)
	ctx := context.Background()
	book(t, db, "2025-12-16", "09:00")

	// midnight in Stockholm sent as UTC, 2025-12-16 is a Tuesday
	for _, date := range []string{"2025-12-16", "2025-12-16T00:00:00Z", "2025-12-15T23:00:00.000Z"} {
		slots, err := svc.Resolve(ctx, date)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", date, err)
		}
		assert.Equal(t, []string{"10:30", "12:00", "13:30", "15:00"}, slots, date)
	}

	override, err := svc.SetOverride(ctx, "2025-12-19T23:00:00Z", []string{"12:00"})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-20", override.Date)
}

func TestOverrides(t *testing.T) {
	svc := NewAvailabilityService(setupDB(t), config.ScheduleConfig{}, nil)
	ctx := context.Background()

	list, err := svc.Overrides(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = svc.SetOverride(ctx, "2025-12-24", []string{})
	require.NoError(t, err)
	_, err = svc.SetOverride(ctx, "2025-12-16", []string{"16:00"})
	require.NoError(t, err)

	list, err = svc.Overrides(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-12-16", list[0].Date)
	assert.Equal(t, []string{"16:00"}, list[0].Slots)
	assert.Equal(t, "2025-12-24", list[1].Date)
}

func TestResolveMany(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	book(t, db, "2025-12-13", "10:00")

	out, err := svc.ResolveMany(context.Background(), []string{"2025-12-13", "2025-12-15"})
	require.NoError(t, err)
	assert.Equal(t, []string{"11:30"}, out["2025-12-13"])
	assert.Len(t, out["2025-12-15"], 5)

	_, err = svc.ResolveMany(context.Background(), []string{"2025-12-13", "nope"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetOverrideValidation(t *testing.T) {
	svc := NewAvailabilityService(setupDB(t), config.ScheduleConfig{}, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		date  string
		slots []string
	}{
		{"bad date", "2025/12/16", []string{"09:00"}},
		{"missing slots", "2025-12-16", nil},
		{"bad slot", "2025-12-16", []string{"9:00"}},
		{"out of range slot", "2025-12-16", []string{"25:00"}},
		{"duplicate slot", "2025-12-16", []string{"09:00", "09:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetOverride(ctx, tt.date, tt.slots)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSeed(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	ctx := context.Background()

	err := svc.Seed(ctx, []models.AvailabilityOverride{
		{Date: "2025-12-24", Slots: []string{"10:00"}},
		{Date: "2025-12-31", Slots: []string{}},
	})
	require.NoError(t, err)

	slots, err := svc.ScheduleFor(ctx, "2025-12-24")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, slots)

	err = svc.Seed(ctx, []models.AvailabilityOverride{{Date: "bad", Slots: []string{}}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetOverridePublishesEvent(t *testing.T) {
	db := setupDB(t)
	svc := NewAvailabilityService(db, config.ScheduleConfig{}, nil)
	bus := events.NewEventBus()
	svc.SetPublisher(bus)

	var got events.AvailabilityEventPayload
	bus.Subscribe(events.EventAvailabilityUpdated, func(e *events.Event) error {
		return json.Unmarshal(e.Payload, &got)
	})

	_, err := svc.SetOverride(context.Background(), "2025-12-16", []string{"16:00"})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-16", got.Date)
	assert.Equal(t, []string{"16:00"}, got.Slots)
}
