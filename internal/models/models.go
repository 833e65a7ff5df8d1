package models

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

// AvailabilityOverride replaces the default schedule for a single day.
type AvailabilityOverride struct {
	Date      string    `json:"date" yaml:"date"`
	Slots     []string  `json:"slots" yaml:"slots"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// ParseDate parses a YYYY-MM-DD day key. Time-of-day is always midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// NormalizeDate reduces raw to a day key. A plain YYYY-MM-DD passes through;
// an RFC3339 timestamp is converted to loc first and its time of day dropped.
func NormalizeDate(raw string, loc *time.Location) (string, error) {
	if _, err := time.Parse(DateLayout, raw); err == nil {
		return raw, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	if loc == nil {
		loc = time.UTC
	}
	return DayKey(ts.In(loc)), nil
}

// DayKey normalises t to its calendar day key in t's own location.
func DayKey(t time.Time) string {
	return t.Format(DateLayout)
}

// IsWeekend reports whether the day falls on Saturday or Sunday.
func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ValidSlot reports whether s is a zero-padded 24h HH:MM string.
func ValidSlot(s string) bool {
	if len(s) != len(SlotLayout) {
		return false
	}
	_, err := time.Parse(SlotLayout, s)
	return err == nil
}

// ValidateSlots checks format and uniqueness of an ordered slot list.
func ValidateSlots(slots []string) error {
	seen := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		if !ValidSlot(s) {
			return fmt.Errorf("invalid slot %q: expected HH:MM", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate slot %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// SlotStart returns the wall-clock start of slot on date in loc.
func SlotStart(date, slot string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+SlotLayout, date+" "+slot, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/slot %s %s: %w", date, slot, err)
	}
	return t, nil
}
