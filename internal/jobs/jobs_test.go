package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reelvault/internal/config"
	"reelvault/internal/events"
	"reelvault/internal/library"
	"reelvault/internal/media"
	"reelvault/internal/models"
	"reelvault/internal/services"
	"reelvault/internal/test"
)

type writeStrategy struct{}

func (writeStrategy) Name() string    { return media.StrategyPlaceholder }
func (writeStrategy) RealFrame() bool { return false }
func (writeStrategy) Generate(_ context.Context, _ media.ThumbnailRequest, outputPath string) error {
	return os.WriteFile(outputPath, []byte("jpeg"), 0o644)
}

func newHandler(t *testing.T) (*TaskHandler, *gorm.DB) {
	t.Helper()

	db := test.GetTestDB(t)
	root := t.TempDir()
	storage, err := library.NewStorage(filepath.Join(root, "videos"), filepath.Join(root, "thumbnails"))
	require.NoError(t, err)

	gen := media.NewThumbnailGeneratorWithStrategies(storage.ThumbnailDir(), time.Second, writeStrategy{})
	pipeline := library.NewPipeline(storage, services.NewCatalogService(db), services.NewAccessService(db), gen,
		&events.Recorder{}, library.PipelineConfig{VideoExtensions: []string{"mp4"}})
	return NewTaskHandler(pipeline), db
}

func TestNewTasks(t *testing.T) {
	task, err := NewThumbnailRegenerateTask(42)
	require.NoError(t, err)
	assert.Equal(t, TypeThumbnailRegenerate, task.Type())
	var regen ThumbnailRegeneratePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &regen))
	assert.Equal(t, int64(42), regen.MovieID)

	task, err = NewThumbnailBackfillTask(0)
	require.NoError(t, err)
	assert.Equal(t, TypeThumbnailBackfill, task.Type())
	var backfill ThumbnailBackfillPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &backfill))
	assert.Equal(t, DefaultBackfillLimit, backfill.Limit)
}

func TestHandleThumbnailBackfill(t *testing.T) {
	h, db := newHandler(t)
	movie := test.CreateTestMovie(t, db, &models.Movie{Title: "A", VideoFile: "a.mp4"})

	task, err := NewThumbnailBackfillTask(10)
	require.NoError(t, err)
	require.NoError(t, h.HandleThumbnailBackfill(context.Background(), task))

	stored, err := services.NewCatalogService(db).GetMovie(movie.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto_thumb_a.jpg", stored.ThumbnailFile)
}

func TestHandleThumbnailRegenerate(t *testing.T) {
	h, db := newHandler(t)
	movie := test.CreateTestMovie(t, db, &models.Movie{Title: "A", VideoFile: "a.mp4"})

	task, err := NewThumbnailRegenerateTask(movie.ID)
	require.NoError(t, err)
	require.NoError(t, h.HandleThumbnailRegenerate(context.Background(), task))

	stored, err := services.NewCatalogService(db).GetMovie(movie.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto_thumb_a.jpg", stored.ThumbnailFile)

	// deleted movies are dropped, not retried
	gone, err := NewThumbnailRegenerateTask(999)
	require.NoError(t, err)
	assert.NoError(t, h.HandleThumbnailRegenerate(context.Background(), gone))
}

func TestHandlers_BadPayloadIsNotRetried(t *testing.T) {
	h, _ := newHandler(t)

	err := h.HandleThumbnailRegenerate(context.Background(), asynq.NewTask(TypeThumbnailRegenerate, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleThumbnailBackfill(context.Background(), asynq.NewTask(TypeThumbnailBackfill, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInstrument(t *testing.T) {
	boom := errors.New("boom")
	wrapped := instrument(TypeThumbnailBackfill, func(context.Context, *asynq.Task) error { return boom })
	assert.ErrorIs(t, wrapped(context.Background(), asynq.NewTask(TypeThumbnailBackfill, nil)), boom)
}

func TestSweeper(t *testing.T) {
	_, err := NewSweeper("not a schedule", time.Second, func(context.Context) error { return nil })
	assert.Error(t, err)

	var runs atomic.Int32
	sweeper, err := NewSweeper("@every 1h", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return errors.New("logged, not returned")
	})
	require.NoError(t, err)

	sweeper.Start()
	sweeper.RunOnce()
	sweeper.RunOnce()
	sweeper.Stop()
	assert.Equal(t, int32(2), runs.Load())
}

func TestSweeper_SkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	sweeper, err := NewSweeper("@every 1h", time.Second, func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		sweeper.RunOnce()
		close(done)
	}()
	<-started
	sweeper.RunOnce()
	close(release)
	<-done

	assert.Equal(t, int32(1), runs.Load())
}

func TestEnqueuer_UnreachableRedis(t *testing.T) {
	opt := RedisOpt(config.RedisConfig{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	enqueuer := NewEnqueuer(opt)
	defer enqueuer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := enqueuer.EnqueueBackfill(ctx, 10)
	assert.Error(t, err)
	_, err = enqueuer.EnqueueRegenerate(ctx, 1)
	assert.Error(t, err)
}
