package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"slotbook/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var bookingColumns = []string{
	"id", "name", "email", "phone", "customer_type", "description",
	"date", "slot", "meeting_link", "created_at",
}

// CreateBooking inserts a booking. The unique (date, slot) index is the only
// guard against double booking; a collision is reported as ErrSlotTaken.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	now := db.now().UTC()
	ib := db.sb.Insert("bookings").
		Columns("name", "email", "phone", "customer_type", "description", "date", "slot", "meeting_link", "created_at").
		Values(
			booking.Name,
			booking.Email,
			booking.Phone,
			string(booking.CustomerType),
			booking.Description,
			booking.Date,
			booking.Slot,
			booking.MeetingLink,
			now,
		)

	id, err := db.insertReturningID(ctx, ib)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	return nil
}

// SetMeetingLink replaces the placeholder link once provisioning succeeds.
func (db *DB) SetMeetingLink(ctx context.Context, id int64, link string) error {
	res, err := db.exec(ctx, db.sb.Update("bookings").
		Set("meeting_link", link).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to update meeting link: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row, err := db.queryRow(ctx, db.sb.Select(bookingColumns...).
		From("bookings").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// BookedSlots returns the taken slots for a day in slot order.
func (db *DB) BookedSlots(ctx context.Context, date string) ([]string, error) {
	rows, err := db.query(ctx, db.sb.Select("slot").
		From("bookings").
		Where(sq.Eq{"date": date}).
		OrderBy("slot"))
	if err != nil {
		return nil, fmt.Errorf("failed to query booked slots: %w", err)
	}
	defer rows.Close()

	slots := make([]string, 0)
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (db *DB) ListBookingsByDate(ctx context.Context, date string) ([]models.Booking, error) {
	return db.GetBookingsByDateRange(ctx, date, date)
}

// GetBookingsByDateRange lists bookings with from <= date <= to, both inclusive.
func (db *DB) GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error) {
	rows, err := db.query(ctx, db.sb.Select(bookingColumns...).
		From("bookings").
		Where(sq.GtOrEq{"date": from}).
		Where(sq.LtOrEq{"date": to}).
		OrderBy("date", "slot"))
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b            models.Booking
		customerType string
	)
	if err := row.Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone, &customerType, &b.Description,
		&b.Date, &b.Slot, &b.MeetingLink, &b.CreatedAt,
	); err != nil {
		return nil, err
	}
	b.CustomerType = models.CustomerType(customerType)
	return &b, nil
}
