package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore is the subset of redis.Cmdable used to skip tasks that were
// already delivered.
type IdempotencyStore interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Worker processes notification tasks from RabbitMQ
type Worker struct {
	channel   Channel
	driver    Driver
	redis     IdempotencyStore
	publisher RabbitPublisher
	logger    *zap.Logger
}

// NewWorker creates a new notification worker. redisClient and publisher may
// be nil; without a publisher failed tasks are not requeued.
func NewWorker(driver Driver, redisClient IdempotencyStore, publisher RabbitPublisher, logger *zap.Logger) *Worker {
	return &Worker{
		channel:   driver.Channel(),
		driver:    driver,
		redis:     redisClient,
		publisher: publisher,
		logger:    logger.With(zap.String("channel", string(driver.Channel()))),
	}
}

func idempotencyKey(taskID string) string {
	return fmt.Sprintf("notif:sent:%s", taskID)
}

// ProcessTask processes a notification task with idempotency and retry logic.
// A returned error means the message should be dead-lettered.
func (w *Worker) ProcessTask(ctx context.Context, body []byte) error {
	var task NotificationTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.Delivery.Channel != w.channel {
		return fmt.Errorf("task %s is for channel %s, worker serves %s", task.ID, task.Delivery.Channel, w.channel)
	}

	if w.redis != nil {
		exists, err := w.redis.Exists(ctx, idempotencyKey(task.ID)).Result()
		if err != nil {
			w.logger.Warn("redis error checking idempotency", zap.Error(err))
		} else if exists > 0 {
			w.logger.Info("task already processed", zap.String("task_id", task.ID))
			return nil
		}
	}

	err := w.driver.Send(ctx, task.Delivery)
	recordDelivery(w.channel, err)
	if err != nil {
		w.logger.Error("failed to send notification", zap.String("task_id", task.ID), zap.Error(err))
		return w.handleRetry(ctx, &task, err)
	}

	if w.redis != nil {
		if err := w.redis.Set(ctx, idempotencyKey(task.ID), "1", idempotencyTTL).Err(); err != nil {
			w.logger.Warn("failed to mark task as sent", zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	w.logger.Info("processed task", zap.String("task_id", task.ID), zap.String("recipient", task.Delivery.Recipient))
	return nil
}

func (w *Worker) handleRetry(ctx context.Context, task *NotificationTask, originalErr error) error {
	task.RetryCount++
	if task.MaxRetries <= 0 {
		task.MaxRetries = defaultMaxRetries
	}
	if task.RetryCount >= task.MaxRetries || w.publisher == nil {
		w.logger.Warn("task exceeded max retries, sending to DLQ",
			zap.String("task_id", task.ID),
			zap.Int("attempts", task.RetryCount),
		)
		return fmt.Errorf("max retries exceeded: %w", originalErr)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := w.publisher.Publish(ctx, QueueFor(w.channel), data); err != nil {
		return fmt.Errorf("requeueing task %s: %w", task.ID, err)
	}
	w.logger.Info("task requeued",
		zap.String("task_id", task.ID),
		zap.Int("attempt", task.RetryCount),
		zap.Int("max_retries", task.MaxRetries),
	)
	return nil
}
