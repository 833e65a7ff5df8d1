package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"slotbook/internal/models"

	sq "github.com/Masterminds/squirrel"
)

// UpsertOverride stores the slot list for a date, replacing any previous one.
func (db *DB) UpsertOverride(ctx context.Context, override *models.AvailabilityOverride) error {
	slots := override.Slots
	if slots == nil {
		slots = []string{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	now := db.now().UTC()
	_, err = db.exec(ctx, db.sb.Insert("availability_overrides").
		Columns("date", "slots", "updated_at").
		Values(override.Date, string(raw), now).
		Suffix("ON CONFLICT(date) DO UPDATE SET slots = excluded.slots, updated_at = excluded.updated_at"))
	if err != nil {
		return fmt.Errorf("failed to upsert availability override: %w", err)
	}

	override.Slots = slots
	override.UpdatedAt = now
	return nil
}

// GetOverride returns ErrNotFound when the date has no override.
func (db *DB) GetOverride(ctx context.Context, date string) (*models.AvailabilityOverride, error) {
	row, err := db.queryRow(ctx, db.sb.Select("date", "slots", "updated_at").
		From("availability_overrides").
		Where(sq.Eq{"date": date}))
	if err != nil {
		return nil, err
	}

	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability override: %w", err)
	}
	return o, nil
}

func (db *DB) ListOverrides(ctx context.Context) ([]models.AvailabilityOverride, error) {
	rows, err := db.query(ctx, db.sb.Select("date", "slots", "updated_at").
		From("availability_overrides").
		OrderBy("date"))
	if err != nil {
		return nil, fmt.Errorf("failed to list availability overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.AvailabilityOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan availability override: %w", err)
		}
		overrides = append(overrides, *o)
	}
	return overrides, rows.Err()
}

func scanOverride(row rowScanner) (*models.AvailabilityOverride, error) {
	var (
		o   models.AvailabilityOverride
		raw string
	)
	if err := row.Scan(&o.Date, &raw, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &o.Slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", o.Date, err)
	}
	return &o, nil
}
