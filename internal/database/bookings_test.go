package database

import (
	"context"
	"io"
	"testing"
	"time"

	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func newBooking(date, slot, email string) *models.Booking {
	return &models.Booking{
		Name:         "Anna Svensson",
		Email:        email,
		Phone:        "+46701234567",
		CustomerType: models.CustomerNew,
		Description:  "Intro call",
		Date:         date,
		Slot:         slot,
		MeetingLink:  "https://zoom.us/j/1234567890?pwd=abc123",
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	fixed := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	ctx := context.Background()
	b := newBooking("2025-12-15", "09:00", "anna@example.com")
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, fixed, b.CreatedAt)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", got.Email)
	assert.Equal(t, models.CustomerNew, got.CustomerType)
	assert.Equal(t, "2025-12-15", got.Date)
	assert.Equal(t, "09:00", got.Slot)
	assert.True(t, fixed.Equal(got.CreatedAt))

	_, err = db.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBookingDuplicateSlot(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateBooking(ctx, newBooking("2025-12-15", "09:00", "a@example.com")))

	err := db.CreateBooking(ctx, newBooking("2025-12-15", "09:00", "b@example.com"))
	assert.ErrorIs(t, err, ErrSlotTaken)

	// same slot on another day is fine
	require.NoError(t, db.CreateBooking(ctx, newBooking("2025-12-16", "09:00", "b@example.com")))
}

func TestBookedSlotsAndRanges(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for _, b := range []*models.Booking{
		newBooking("2025-12-15", "12:00", "a@example.com"),
		newBooking("2025-12-15", "09:00", "b@example.com"),
		newBooking("2025-12-16", "10:30", "c@example.com"),
		newBooking("2025-12-20", "10:00", "d@example.com"),
	} {
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	slots, err := db.BookedSlots(ctx, "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "12:00"}, slots)

	empty, err := db.BookedSlots(ctx, "2025-12-17")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	ranged, err := db.GetBookingsByDateRange(ctx, "2025-12-15", "2025-12-16")
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, "09:00", ranged[0].Slot)
	assert.Equal(t, "2025-12-16", ranged[2].Date)

	day, err := db.ListBookingsByDate(ctx, "2025-12-20")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "d@example.com", day[0].Email)
}

func TestSetMeetingLink(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newBooking("2025-12-15", "09:00", "a@example.com")
	require.NoError(t, db.CreateBooking(ctx, b))

	require.NoError(t, db.SetMeetingLink(ctx, b.ID, "https://zoom.us/j/999"))
	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://zoom.us/j/999", got.MeetingLink)

	assert.ErrorIs(t, db.SetMeetingLink(ctx, 12345, "x"), ErrNotFound)
}
