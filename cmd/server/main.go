package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"reelvault/internal/config"
	"reelvault/internal/database"
	"reelvault/internal/events"
	"reelvault/internal/handlers"
	"reelvault/internal/jobs"
	"reelvault/internal/library"
	"reelvault/internal/logging"
	"reelvault/internal/media"
	"reelvault/internal/server"
	"reelvault/internal/services"
	"reelvault/internal/session"
	"reelvault/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	logger := logging.WithModule("main")

	dbManager, err := database.NewDatabaseManager(&cfg.Database, logging.WithModule("database"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbManager.Close()
	db := dbManager.GetGormDB()

	if err := database.NewMigrationManager(db, logging.WithModule("database")).Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}

	var seed *database.SeedData
	if cfg.Database.SeedFile != "" {
		seed, err = database.LoadSeedFile(cfg.Database.SeedFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.Database.SeedFile).Msg("Failed to load seed file")
		}
	}
	if err := database.Seed(db, seed, logging.WithModule("database")); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed database")
	}

	tracer, err := tracing.Setup(cfg.Tracing, "reelvault")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up tracing")
	}

	redisClient := session.NewRedisClient(cfg.Redis)
	var sessionStorage fiber.Storage
	if redisClient != nil {
		sessionStorage = session.NewRedisStorage(redisClient, cfg.Redis.Timeout)
	}

	publisher := events.New(cfg.Events)

	storage, err := library.NewStorage(cfg.Storage.UploadDir, cfg.Storage.ThumbnailDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare storage directories")
	}
	thumbnails, err := media.NewThumbnailGenerator(cfg.Thumbnails, storage.ThumbnailDir())
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid thumbnail configuration")
	}
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

	// with a queue the worker owns the periodic backfill; without one it runs here
	var queue handlers.ThumbnailQueue
	var enqueuer *jobs.Enqueuer
	var sweeper *jobs.Sweeper
	if cfg.Queue.Enabled {
		enqueuer = jobs.NewEnqueuer(jobs.RedisOpt(cfg.Redis))
		queue = enqueuer
	} else if cfg.Queue.SweepSchedule != "" {
		sweeper, err = jobs.NewSweeper(cfg.Queue.SweepSchedule, time.Hour, func(ctx context.Context) error {
			_, err := pipeline.Backfill(ctx, jobs.DefaultBackfillLimit)
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to schedule thumbnail sweep")
		}
		sweeper.Start()
	}

	srv, err := server.New(server.Options{
		Config:    cfg,
		DB:        db,
		Pinger:    dbManager,
		Pipeline:  pipeline,
		Redis:     redisClient,
		Sessions:  sessionStorage,
		Publisher: publisher,
		Queue:     queue,
		Seed:      seed,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build server")
	}

	logger.Info().
		Str("environment", cfg.Server.Environment).
		Str("database", cfg.Database.Driver).
		Bool("redis", redisClient != nil).
		Bool("queue", cfg.Queue.Enabled).
		Strs("thumbnail_strategies", thumbnails.Strategies()).
		Msg("ReelVault configured")

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if enqueuer != nil {
		if err := enqueuer.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close queue client")
		}
	}
	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close event publisher")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush traces")
	}
}
