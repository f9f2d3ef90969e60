package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"reelvault/internal/config"
)

// Task types for Asynq
const (
	TypeThumbnailRegenerate = "thumbnail:regenerate"
	TypeThumbnailBackfill   = "thumbnail:backfill"
)

// QueueThumbnails is the queue thumbnail work runs on
const QueueThumbnails = "thumbnails"

// DefaultBackfillLimit caps how many movies one backfill run touches
const DefaultBackfillLimit = 200

// backfillTaskID deduplicates backfills; only one may be queued at a time
const backfillTaskID = "thumbnail.backfill"

// ThumbnailRegeneratePayload is the payload of a regenerate task
type ThumbnailRegeneratePayload struct {
	MovieID int64 `json:"movie_id"`
}

// ThumbnailBackfillPayload is the payload of a backfill task
type ThumbnailBackfillPayload struct {
	Limit int `json:"limit"`
}

// NewThumbnailRegenerateTask builds a task that regenerates one movie's thumbnail
func NewThumbnailRegenerateTask(movieID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ThumbnailRegeneratePayload{MovieID: movieID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal regenerate payload: %w", err)
	}
	return asynq.NewTask(TypeThumbnailRegenerate, payload), nil
}

// NewThumbnailBackfillTask builds a task that fills in missing thumbnails
func NewThumbnailBackfillTask(limit int) (*asynq.Task, error) {
	if limit <= 0 {
		limit = DefaultBackfillLimit
	}
	payload, err := json.Marshal(ThumbnailBackfillPayload{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backfill payload: %w", err)
	}
	return asynq.NewTask(TypeThumbnailBackfill, payload), nil
}

// RedisOpt converts the Redis settings into Asynq connection options
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
}

// Enqueuer puts thumbnail work on the queue
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an enqueuer on the given Redis
func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(opt)}
}

// EnqueueRegenerate queues a thumbnail regeneration and returns the task id
func (e *Enqueuer) EnqueueRegenerate(ctx context.Context, movieID int64) (string, error) {
	task, err := NewThumbnailRegenerateTask(movieID)
	if err != nil {
		return "", err
	}

	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueThumbnails),
		asynq.TaskID(fmt.Sprintf("thumbnail.regenerate:%d", movieID)),
		asynq.Timeout(5*time.Minute),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue thumbnail regeneration: %w", err)
	}
	return info.ID, nil
}

// EnqueueBackfill queues a backfill. A backfill already waiting is not duplicated.
func (e *Enqueuer) EnqueueBackfill(ctx context.Context, limit int) (string, error) {
	task, err := NewThumbnailBackfillTask(limit)
	if err != nil {
		return "", err
	}

	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueThumbnails),
		asynq.TaskID(backfillTaskID),
		asynq.Timeout(time.Hour),
		asynq.MaxRetry(1),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return backfillTaskID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue thumbnail backfill: %w", err)
	}
	return info.ID, nil
}

// Close releases the Redis connection
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
