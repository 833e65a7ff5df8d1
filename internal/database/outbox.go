package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotbook/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var outboxColumns = []string{
	"id", "task_type", "booking_id", "payload", "status", "retry_count",
	"last_error", "created_at", "processed_at", "next_retry_at",
}

func (db *DB) CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error {
	now := db.now().UTC()
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	id, err := db.insertReturningID(ctx, db.sb.Insert("outbox").
		Columns("task_type", "booking_id", "payload", "status", "retry_count", "last_error", "created_at", "next_retry_at").
		Values(
			task.TaskType,
			task.BookingID,
			task.Payload,
			task.Status,
			task.RetryCount,
			task.LastError,
			now,
			unixMilliOrNil(task.NextRetryAt),
		))
	if err != nil {
		return fmt.Errorf("failed to create outbox task: %w", err)
	}

	task.ID = id
	task.CreatedAt = now
	return nil
}

// GetPendingOutboxTasks returns due pending/retry tasks, oldest first.
func (db *DB) GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error) {
	now := db.now().UnixMilli()
	return db.listOutbox(ctx, db.sb.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"status": []string{models.TaskPending, models.TaskRetry}}).
		Where(sq.Or{sq.Eq{"next_retry_at": nil}, sq.LtOrEq{"next_retry_at": now}}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)))
}

func (db *DB) GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error) {
	tasks, err := db.listOutbox(ctx, db.sb.Select(outboxColumns...).From("outbox").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return &tasks[0], nil
}

func (db *DB) GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error) {
	return db.listOutbox(ctx, db.sb.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"status": models.TaskFailed}).
		OrderBy("created_at DESC"))
}

// ClaimOutboxTask marks a pending or retry task as running. It returns false when
// another consumer already claimed it.
func (db *DB) ClaimOutboxTask(ctx context.Context, id int64) (bool, error) {
	res, err := db.exec(ctx, db.sb.Update("outbox").
		Set("status", models.TaskRunning).
		Where(sq.Eq{"id": id, "status": []string{models.TaskPending, models.TaskRetry}}))
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox task: %w", err)
	}
	return n == 1, nil
}

// RequeueOutboxTask resets a failed or stuck running task to a fresh pending one.
// It returns false when the task is in any other state.
func (db *DB) RequeueOutboxTask(ctx context.Context, id int64) (bool, error) {
	res, err := db.exec(ctx, db.sb.Update("outbox").
		Set("status", models.TaskPending).
		Set("retry_count", 0).
		Set("last_error", nil).
		Set("next_retry_at", nil).
		Set("processed_at", nil).
		Where(sq.Eq{"id": id, "status": []string{models.TaskFailed, models.TaskRunning}}))
	if err != nil {
		return false, fmt.Errorf("failed to requeue outbox task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to requeue outbox task: %w", err)
	}
	return n == 1, nil
}

// UpdateOutboxTaskStatus moves a task along pending -> retry -> completed|failed.
func (db *DB) UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	ub := db.sb.Update("outbox").
		Set("status", status).
		Set("last_error", nullString(errMsg)).
		Set("next_retry_at", unixMilliOrNil(nextRetryAt)).
		Where(sq.Eq{"id": id})

	switch status {
	case models.TaskRetry:
		ub = ub.Set("retry_count", sq.Expr("retry_count + 1"))
	case models.TaskCompleted, models.TaskFailed:
		ub = ub.Set("processed_at", db.now().UTC())
	}

	if _, err := db.exec(ctx, ub); err != nil {
		return fmt.Errorf("failed to update outbox task status: %w", err)
	}
	return nil
}

func (db *DB) listOutbox(ctx context.Context, b sq.SelectBuilder) ([]models.OutboxTask, error) {
	rows, err := db.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var tasks []models.OutboxTask
	for rows.Next() {
		var (
			t           models.OutboxTask
			lastError   sql.NullString
			processedAt sql.NullTime
			nextRetryAt sql.NullInt64
		)
		if err := rows.Scan(
			&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
			&lastError, &t.CreatedAt, &processedAt, &nextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox task: %w", err)
		}
		if lastError.Valid {
			t.LastError = &lastError.String
		}
		if processedAt.Valid {
			t.ProcessedAt = &processedAt.Time
		}
		if nextRetryAt.Valid {
			at := time.UnixMilli(nextRetryAt.Int64)
			t.NextRetryAt = &at
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func unixMilliOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
