package models

import "time"

var (
	// DefaultWeekdaySlots is the Monday to Friday schedule.
	DefaultWeekdaySlots = []string{"09:00", "10:30", "12:00", "13:30", "15:00"}
	// DefaultWeekendSlots is the Saturday and Sunday schedule.
	DefaultWeekendSlots = []string{"10:00", "11:30"}
)

const (
	DefaultMeetingDuration = 60 * time.Minute
	DefaultCodeTTL         = 10 * time.Minute
	DefaultVerifiedTTL     = 30 * time.Minute
	DefaultMaxBookingDays  = 365

	// DefaultSendLimit caps verification code sends per email within DefaultSendWindow.
	DefaultSendLimit  = 5
	DefaultSendWindow = 10 * time.Minute

	CodeLength = 6
)

// Outbox task statuses.
const (
	TaskPending   = "pending"
	TaskRetry     = "retry"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)
