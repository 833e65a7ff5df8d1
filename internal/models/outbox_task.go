package models

import "time"

// Outbox task types.
const (
	TaskSheetsAppend = "sheets_append"
	TaskNotifyRetry  = "notify_retry"
)

// OutboxTask is a persisted unit of deferred side-effect work for a booking.
type OutboxTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
