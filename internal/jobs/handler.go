package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"reelvault/internal/library"
	"reelvault/internal/logging"
	"reelvault/internal/metrics"
	"reelvault/internal/services"
)

// TaskHandler runs thumbnail tasks against the upload pipeline
type TaskHandler struct {
	pipeline *library.Pipeline
	logger   *zerolog.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(pipeline *library.Pipeline) *TaskHandler {
	return &TaskHandler{
		pipeline: pipeline,
		logger:   logging.WithModule("jobs"),
	}
}

// Register wires every task type into the mux
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeThumbnailRegenerate, instrument(TypeThumbnailRegenerate, h.HandleThumbnailRegenerate))
	mux.HandleFunc(TypeThumbnailBackfill, instrument(TypeThumbnailBackfill, h.HandleThumbnailBackfill))
}

// HandleThumbnailRegenerate regenerates one movie's thumbnail. A movie deleted
// since the task was queued is not retried.
func (h *TaskHandler) HandleThumbnailRegenerate(ctx context.Context, t *asynq.Task) error {
	var p ThumbnailRegeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal regenerate payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := h.pipeline.RegenerateThumbnail(ctx, p.MovieID)
	if services.IsNotFound(err) {
		h.logger.Info().Int64("movie_id", p.MovieID).Msg("Movie gone, skipping thumbnail regeneration")
		return nil
	}
	if err != nil {
		return err
	}

	event := h.logger.Info().Int64("movie_id", p.MovieID)
	if result != nil {
		event = event.Str("thumbnail", result.File).Str("strategy", result.Strategy)
	}
	event.Msg("Thumbnail regenerated")
	return nil
}

// HandleThumbnailBackfill fills in thumbnails for movies that have none
func (h *TaskHandler) HandleThumbnailBackfill(ctx context.Context, t *asynq.Task) error {
	var p ThumbnailBackfillPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal backfill payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Limit <= 0 {
		p.Limit = DefaultBackfillLimit
	}

	_, err := h.pipeline.Backfill(ctx, p.Limit)
	return err
}

// instrument records duration and outcome of every task
func instrument(taskType string, fn asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := fn(ctx, t)
		duration := time.Since(start)

		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.JobDurationSeconds.WithLabelValues(QueueThumbnails, taskType, status).Observe(duration.Seconds())
		logging.GetGlobalLogger().LogJobProcessing(QueueThumbnails, taskType, duration, err)
		return err
	}
}
