package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"reelvault/internal/config"
	"reelvault/internal/database"
	"reelvault/internal/events"
	"reelvault/internal/jobs"
	"reelvault/internal/library"
	"reelvault/internal/logging"
	"reelvault/internal/media"
	"reelvault/internal/services"
	"reelvault/internal/tracing"
)

// WorkerServer runs queued thumbnail work and the periodic backfill
type WorkerServer struct {
	srv       *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	dbManager *database.DatabaseManager
	publisher events.Publisher
	tracer    *tracing.Tracer
	logger    *zerolog.Logger
}

// NewWorkerServer creates a new worker server
func NewWorkerServer(cfg *config.AppConfig) (*WorkerServer, error) {
	if !cfg.Redis.Enabled() {
		return nil, fmt.Errorf("the worker needs redis.address to be set")
	}

	dbManager, err := database.NewDatabaseManager(&cfg.Database, logging.WithModule("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db := dbManager.GetGormDB()

	tracer, err := tracing.Setup(cfg.Tracing, "reelvault-worker")
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	storage, err := library.NewStorage(cfg.Storage.UploadDir, cfg.Storage.ThumbnailDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare storage directories: %w", err)
	}
	thumbnails, err := media.NewThumbnailGenerator(cfg.Thumbnails, storage.ThumbnailDir())
	if err != nil {
		return nil, fmt.Errorf("invalid thumbnail configuration: %w", err)
	}

	publisher := events.New(cfg.Events)
	pipeline := library.NewPipeline(
		storage,
		services.NewCatalogService(db),
		services.NewAccessService(db),
		thumbnails,
		publisher,
		library.PipelineConfig{
			VideoExtensions: cfg.Storage.VideoExtensions,
			ImageExtensions: cfg.Storage.ImageExtensions,
		},
	)

	redisOpt := jobs.RedisOpt(cfg.Redis)
	logger := logging.WithModule("worker")

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			jobs.QueueThumbnails: 1,
		},
		Logger: asynqLogger{logger: logger},
	})

	mux := asynq.NewServeMux()
	jobs.NewTaskHandler(pipeline).Register(mux)

	var scheduler *asynq.Scheduler
	if cfg.Queue.SweepSchedule != "" {
		scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{logger: logger}})
		entryID, err := jobs.ScheduleBackfill(scheduler, cfg.Queue.SweepSchedule, jobs.DefaultBackfillLimit)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("entry", entryID).Str("schedule", cfg.Queue.SweepSchedule).Msg("Scheduled thumbnail backfill")
	}

	return &WorkerServer{
		srv:       srv,
		mux:       mux,
		scheduler: scheduler,
		dbManager: dbManager,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger,
	}, nil
}

// Start starts processing and, when configured, the scheduler
func (w *WorkerServer) Start() error {
	w.logger.Info().Msg("Starting worker server...")

	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the worker server
func (w *WorkerServer) Shutdown(ctx context.Context) {
	w.logger.Info().Msg("Shutting down worker server...")

	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.srv.Shutdown()

	if err := w.publisher.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to close event publisher")
	}
	if err := w.tracer.Shutdown(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	if err := w.dbManager.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to close database")
	}
}

// asynqLogger routes Asynq's own logging through zerolog
type asynqLogger struct {
	logger *zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)

	worker, err := NewWorkerServer(cfg)
	if err != nil {
		logging.Fatalf("Failed to create worker server: %v", err)
	}

	if err := worker.Start(); err != nil {
		logging.Fatalf("Worker server error: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	worker.logger.Info().Msg("Received shutdown signal")

	worker.Shutdown(context.Background())
}
