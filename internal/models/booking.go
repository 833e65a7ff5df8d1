package models

import "time"

// CustomerType distinguishes returning customers from first-time visitors.
type CustomerType string

const (
	CustomerExisting CustomerType = "existing"
	CustomerNew      CustomerType = "new"
)

// Label is the human readable form used in operator notifications.
func (c CustomerType) Label() string {
	if c == CustomerExisting {
		return "Existing customer"
	}
	return "New customer"
}

type Booking struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	CustomerType CustomerType `json:"customerType"`
	Description  string       `json:"description,omitempty"`
	Date         string       `json:"date"` // YYYY-MM-DD
	Slot         string       `json:"slot"` // HH:MM
	MeetingLink  string       `json:"meetingLink"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// StartsAt combines the booking day and slot in loc.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, error) {
	return SlotStart(b.Date, b.Slot, loc)
}
