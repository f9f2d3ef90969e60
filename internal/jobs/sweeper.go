package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"reelvault/internal/logging"
)

// Sweeper periodically looks for movies without a thumbnail. Without a queue
// it runs in process on a cron schedule; with one, the worker registers the
// same schedule on the Asynq scheduler instead.
type Sweeper struct {
	cron    *cron.Cron
	run     func(ctx context.Context) error
	timeout time.Duration
	mu      sync.Mutex
	running bool
	logger  *zerolog.Logger
}

// NewSweeper runs run on a cron schedule (standard syntax or descriptors such as "@every 1h")
func NewSweeper(schedule string, timeout time.Duration, run func(ctx context.Context) error) (*Sweeper, error) {
	if timeout <= 0 {
		timeout = time.Hour
	}
	s := &Sweeper{
		cron:    cron.New(),
		run:     run,
		timeout: timeout,
		logger:  logging.WithModule("sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the schedule
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce runs one sweep unless one is already in progress
func (s *Sweeper) RunOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous sweep still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Thumbnail sweep failed")
	}
}

// ScheduleBackfill registers the periodic backfill on the Asynq scheduler
func ScheduleBackfill(scheduler *asynq.Scheduler, schedule string, limit int) (string, error) {
	task, err := NewThumbnailBackfillTask(limit)
	if err != nil {
		return "", err
	}
	entryID, err := scheduler.Register(schedule, task,
		asynq.Queue(QueueThumbnails),
		asynq.TaskID(backfillTaskID),
		asynq.Timeout(time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule thumbnail backfill: %w", err)
	}
	return entryID, nil
}
