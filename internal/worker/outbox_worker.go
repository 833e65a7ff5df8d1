package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisQueueKey = "outbox:queue"
	deadLetterKey = "outbox:deadletter"
)

// ErrTaskNotRequeueable is returned for tasks that are neither failed nor running.
var ErrTaskNotRequeueable = errors.New("outbox task is not failed or running")

// OutboxStore persists tasks; *database.DB satisfies it.
type OutboxStore interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	ClaimOutboxTask(ctx context.Context, id int64) (bool, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error)
	GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error)
	RequeueOutboxTask(ctx context.Context, id int64) (bool, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
}

// taskPayload is persisted in OutboxTask.Payload as JSON.
type taskPayload struct {
	BookingID int64           `json:"booking_id"`
	Booking   *models.Booking `json:"booking,omitempty"`
	Target    string          `json:"target,omitempty"`
}

// OutboxWorker runs deferred booking side effects. Tasks are persisted first,
// then handed over via Redis or an in-memory channel; DB polling picks up the rest.
type OutboxWorker struct {
	store        OutboxStore
	sheets       domain.SheetsWriter
	notifiers    map[string]domain.BookingNotifier
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.OutboxTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewOutboxWorker(store OutboxStore, sheets domain.SheetsWriter, notifiers []domain.BookingNotifier, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	byName := make(map[string]domain.BookingNotifier, len(notifiers))
	for _, n := range notifiers {
		byName[n.Name()] = n
	}

	return &OutboxWorker{
		store:        store,
		sheets:       sheets,
		notifiers:    byName,
		redis:        redisClient,
		retryPolicy:  retry,
		queue:        make(chan models.OutboxTask, 128),
		pollInterval: pollInterval,
		batchSize:    20,
		logger:       logger,
		now:          time.Now,
	}
}

// EnqueueTask persists a task for the booking and schedules it.
func (w *OutboxWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking, target string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil || booking.ID == 0 {
		return errors.New("booking id is required")
	}
	if taskType == models.TaskSheetsAppend && w.sheets == nil {
		return nil
	}
	if taskType == models.TaskNotifyRetry && target == "" {
		return errors.New("notifier name is required")
	}

	raw, err := json.Marshal(taskPayload{BookingID: booking.ID, Booking: booking, Target: target})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.OutboxTask{
		TaskType:  taskType,
		BookingID: booking.ID,
		Payload:   string(raw),
		Status:    models.TaskPending,
	}
	if taskType == models.TaskNotifyRetry {
		// the notifier just failed inline; give it a moment before the first retry
		next := w.now().Add(w.retryPolicy.NextDelay(1))
		task.NextRetryAt = &next
	}

	if err := w.store.CreateOutboxTask(ctx, &task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}
	if task.NextRetryAt != nil {
		return nil
	}
	w.dispatch(ctx, task)
	return nil
}

// FailedTasks lists dead-lettered tasks, newest first.
func (w *OutboxWorker) FailedTasks(ctx context.Context) ([]models.OutboxTask, error) {
	tasks, err := w.store.GetFailedOutboxTasks(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.OutboxTask{}
	}
	return tasks, nil
}

// Requeue gives a failed or stuck task a fresh retry budget and hands it back to the loop.
func (w *OutboxWorker) Requeue(ctx context.Context, id int64) (*models.OutboxTask, error) {
	ok, err := w.store.RequeueOutboxTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task, err := w.store.GetOutboxTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %d is %s", ErrTaskNotRequeueable, id, task.Status)
	}

	w.logger.Info().Int64("task_id", id).Str("task", task.TaskType).Msg("outbox task requeued")
	w.dispatch(ctx, *task)
	return task, nil
}

// dispatch wakes the loop for a due task. Polling picks it up if both queues are unavailable.
func (w *OutboxWorker) dispatch(ctx context.Context, task models.OutboxTask) {
	if w.redis != nil {
		if err := w.pushRedis(ctx, redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("outbox redis push failed, falling back to memory queue")
		} else {
			return
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("outbox memory queue full, task left to polling")
	}
}

// Start runs the worker loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for ctx.Err() == nil {
		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingOutboxTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("outbox fetch pending")
			}
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("outbox redis BRPOP")
		}
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis outbox task")
		return models.OutboxTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	claimed, err := w.store.ClaimOutboxTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("claim outbox task")
		return
	}
	if !claimed {
		return
	}

	log := w.logger.With().Int64("task_id", task.ID).Str("task", task.TaskType).Int64("booking_id", task.BookingID).Logger()

	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err), &log)
		return
	}

	if err := w.handle(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err, &log)
		return
	}

	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("mark outbox task completed")
		return
	}
	log.Debug().Msg("outbox task completed")
}

func (w *OutboxWorker) handle(ctx context.Context, taskType string, payload taskPayload) error {
	booking := payload.Booking
	if booking == nil {
		if payload.BookingID == 0 {
			return errors.New("booking missing from payload")
		}
		b, err := w.store.GetBooking(ctx, payload.BookingID)
		if err != nil {
			return fmt.Errorf("load booking %d: %w", payload.BookingID, err)
		}
		booking = b
	}

	switch taskType {
	case models.TaskSheetsAppend:
		if w.sheets == nil {
			return errors.New("sheets writer is not configured")
		}
		return w.sheets.AppendBooking(ctx, booking)
	case models.TaskNotifyRetry:
		n, ok := w.notifiers[payload.Target]
		if !ok {
			return fmt.Errorf("unknown notifier %q", payload.Target)
		}
		return n.NotifyBooked(ctx, booking)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error, log *zerolog.Logger) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause, log)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &next); err != nil {
		log.Error().Err(err).Msg("mark outbox task retry")
		return
	}
	log.Warn().Err(cause).Int("attempt", attempt).Time("next_retry_at", next).Msg("outbox task failed, will retry")
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error, log *zerolog.Logger) {
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
		log.Error().Err(err).Msg("mark outbox task failed")
	}
	log.Error().Err(cause).Msg("outbox task failed permanently")
	if w.redis != nil {
		if err := w.pushRedis(ctx, deadLetterKey, *task); err != nil {
			log.Error().Err(err).Msg("outbox deadletter push")
		}
	}
}

func decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
