package database

import (
	"context"
	"testing"
	"time"

	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	db := setupTestDB(t)
	db.Close() // every call below must surface the closed-db error

	ctx := context.Background()

	t.Run("CreateBooking_Error", func(t *testing.T) {
		err := db.CreateBooking(ctx, newBooking("2025-12-15", "09:00", "a@example.com"))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("BookedSlots_Error", func(t *testing.T) {
		_, err := db.BookedSlots(ctx, "2025-12-15")
		assert.Error(t, err)
	})

	t.Run("GetBookingsByDateRange_Error", func(t *testing.T) {
		_, err := db.GetBookingsByDateRange(ctx, "2025-12-01", "2025-12-31")
		assert.Error(t, err)
	})

	t.Run("UpsertOverride_Error", func(t *testing.T) {
		err := db.UpsertOverride(ctx, &models.AvailabilityOverride{Date: "2025-12-15"})
		assert.Error(t, err)
	})

	t.Run("Verification_Error", func(t *testing.T) {
		store := NewVerificationStore(db)
		assert.Error(t, store.SaveCode(ctx, "a@example.com", "123456", time.Now(), time.Minute))
		_, err := store.Consume(ctx, "a@example.com", time.Now())
		assert.Error(t, err)
	})

	t.Run("Outbox_Error", func(t *testing.T) {
		_, err := db.GetPendingOutboxTasks(ctx, 10)
		assert.Error(t, err)
	})
}
