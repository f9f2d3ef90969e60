package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reelvault/internal/events"
	"reelvault/internal/logging"
	"reelvault/internal/media"
	"reelvault/internal/metrics"
	"reelvault/internal/models"
	"reelvault/internal/services"
	"reelvault/internal/tracing"
)

// ContentTypeSeries marks an upload whose series identity is given explicitly
const ContentTypeSeries = "series"

// customThumbPrefix marks thumbnails uploaded alongside a video
const customThumbPrefix = "thumb_"

// ErrNoFile is returned when an upload carries no video file
var ErrNoFile = errors.New("no video file provided")

// ValidationError reports a rejected upload field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// UploadFile is an uploaded file that can be opened once for copying
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FromFileHeader adapts a multipart file; a nil header yields nil
func FromFileHeader(fh *multipart.FileHeader) *UploadFile {
	if fh == nil {
		return nil
	}
	return &UploadFile{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// UploadInput is everything the upload form carries
type UploadInput struct {
	Video        *UploadFile
	Thumbnail    *UploadFile
	Title        string
	Description  string
	Genre        string
	Duration     int
	ReleaseYear  int
	ContentType  string
	SeriesName   string
	Season       int
	Episode      int
	EpisodeTitle string
	UploadedBy   *int64
	ClientIP     string
}

// UploadResult describes a stored upload. Inferred is set when the series
// identity came from the file name.
type UploadResult struct {
	Movie     *models.Movie          `json:"movie"`
	Thumbnail *media.ThumbnailResult `json:"thumbnail,omitempty"`
	Inferred  bool                   `json:"inferred"`
}

// BackfillReport summarizes a thumbnail backfill run
type BackfillReport struct {
	Checked   int `json:"checked"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
}

// PipelineConfig holds the upload rules
type PipelineConfig struct {
	VideoExtensions []string
	ImageExtensions []string
}

// Pipeline stores uploads, organizes series episodes into folders and keeps
// thumbnails in step with the catalog
type Pipeline struct {
	storage    *Storage
	catalog    *services.CatalogService
	access     *services.AccessService
	thumbnails *media.ThumbnailGenerator
	publisher  events.Publisher
	config     PipelineConfig
	now        func() time.Time
	logger     *zerolog.Logger
}

// NewPipeline creates an upload pipeline
func NewPipeline(
	storage *Storage,
	catalog *services.CatalogService,
	access *services.AccessService,
	thumbnails *media.ThumbnailGenerator,
	publisher events.Publisher,
	cfg PipelineConfig,
) *Pipeline {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Pipeline{
		storage:    storage,
		catalog:    catalog,
		access:     access,
		thumbnails: thumbnails,
		publisher:  publisher,
		config:     cfg,
		now:        func() time.Time { return time.Now() },
		logger:     logging.WithModule("upload"),
	}
}

// Storage exposes the underlying file storage
func (p *Pipeline) Storage() *Storage {
	return p.storage
}

// identity is the resolved series identity of an upload
type identity struct {
	isSeries bool
	inferred bool
	EpisodeInfo
}

func (p *Pipeline) resolveIdentity(in *UploadInput) (identity, error) {
	if strings.EqualFold(strings.TrimSpace(in.ContentType), ContentTypeSeries) {
		name := strings.TrimSpace(in.SeriesName)
		if name == "" {
			return identity{}, &ValidationError{Field: "series_name", Message: "is required for series uploads"}
		}
		if in.Season <= 0 {
			return identity{}, &ValidationError{Field: "season_number", Message: "must be a positive number"}
		}
		if in.Episode <= 0 {
			return identity{}, &ValidationError{Field: "episode_number", Message: "must be a positive number"}
		}
		return identity{isSeries: true, EpisodeInfo: EpisodeInfo{SeriesName: name, Season: in.Season, Episode: in.Episode}}, nil
	}

	if info, ok := ParseEpisode(in.Video.Name); ok {
		return identity{isSeries: true, inferred: true, EpisodeInfo: info}, nil
	}
	return identity{}, nil
}

// Upload validates, stores and catalogs one video
func (p *Pipeline) Upload(ctx context.Context, in UploadInput) (result *UploadResult, err error) {
	if in.Video == nil || strings.TrimSpace(in.Video.Name) == "" {
		return nil, ErrNoFile
	}
	if !AllowedExtension(in.Video.Name, p.config.VideoExtensions) {
		return nil, &ValidationError{
			Field:   "video_file",
			Message: fmt.Sprintf("file type not allowed, use one of %s", strings.Join(p.config.VideoExtensions, ", ")),
		}
	}
	if in.Thumbnail != nil && in.Thumbnail.Name != "" && !AllowedExtension(in.Thumbnail.Name, p.config.ImageExtensions) {
		return nil, &ValidationError{
			Field:   "thumbnail",
			Message: fmt.Sprintf("image type not allowed, use one of %s", strings.Join(p.config.ImageExtensions, ", ")),
		}
	}

	id, err := p.resolveIdentity(&in)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "library", "upload", tracing.UploadAttrs(in.Video.Name, id.isSeries, id.SeriesName)...)
	defer func() { tracing.EndSpan(span, err) }()

	now := p.now().UTC()
	stamp := Timestamp(now)
	secure := SecureFilename(in.Video.Name)

	var videoFile string
	if id.isSeries {
		folder := SanitizeFolderName(id.SeriesName)
		videoFile = path.Join(folder, fmt.Sprintf("%s_%s_%s_%s", folder, EpisodeCode(id.Season, id.Episode), stamp, secure))
	} else {
		videoFile = stamp + "_" + secure
	}

	videoPath, err := p.storage.VideoPath(videoFile)
	if err != nil {
		return nil, err
	}
	size, err := p.save(videoPath, in.Video)
	if err != nil {
		return nil, err
	}

	var customThumb, customThumbPath string
	if in.Thumbnail != nil && in.Thumbnail.Name != "" {
		customThumb = customThumbPrefix + stamp + "_" + SecureFilename(in.Thumbnail.Name)
		if customThumbPath, err = p.storage.ThumbnailPath(customThumb); err == nil {
			_, err = p.save(customThumbPath, in.Thumbnail)
		}
		if err != nil {
			p.cleanup(videoPath, "")
			return nil, err
		}
	}

	movie := &models.Movie{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Genre:       strings.TrimSpace(in.Genre),
		Duration:    in.Duration,
		ReleaseYear: in.ReleaseYear,
		VideoFile:   videoFile,
		UploadedBy:  in.UploadedBy,
		UploadedAt:  now,
	}
	if id.isSeries {
		movie.IsSeries = true
		movie.SeriesName = id.SeriesName
		movie.SeasonNumber = id.Season
		movie.EpisodeNumber = id.Episode
		movie.EpisodeTitle = strings.TrimSpace(in.EpisodeTitle)
		if movie.Title == "" {
			movie.Title = EpisodeTitle(id.SeriesName, id.Season, id.Episode)
		}
	} else if movie.Title == "" {
		movie.Title = MovieTitle(in.Video.Name)
	}
	if customThumb != "" {
		movie.ThumbnailFile = customThumb
	}

	if err = p.catalog.CreateMovie(movie); err != nil {
		p.cleanup(videoPath, customThumbPath)
		return nil, err
	}

	result = &UploadResult{Movie: movie, Inferred: id.inferred}

	if customThumb == "" {
		result.Thumbnail = p.generateThumbnail(ctx, movie, videoPath)
	}

	kind := "movie"
	if movie.IsSeries {
		kind = "episode"
	}
	metrics.UploadsTotal.WithLabelValues(kind).Inc()
	metrics.UploadBytesTotal.Add(float64(size))

	p.logger.Info().
		Int64("movie_id", movie.ID).
		Str("video", videoFile).
		Bool("series", movie.IsSeries).
		Bool("inferred", id.inferred).
		Int64("bytes", size).
		Msg("Upload stored")

	action := fmt.Sprintf("UPLOAD %s (%s)", movie.Title, videoFile)
	if err := p.access.LogAdminAction(in.UploadedBy, in.ClientIP, action, true); err != nil {
		p.logger.Error().Err(err).Msg("Failed to write upload audit entry")
	}

	p.publish(ctx, events.MovieUploaded, map[string]interface{}{
		"movie_id":    movie.ID,
		"title":       movie.Title,
		"video_file":  movie.VideoFile,
		"is_series":   movie.IsSeries,
		"series_name": movie.SeriesName,
		"season":      movie.SeasonNumber,
		"episode":     movie.EpisodeNumber,
		"thumbnail":   movie.ThumbnailFile,
	})

	return result, nil
}

func (p *Pipeline) save(dst string, file *UploadFile) (int64, error) {
	src, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open upload %s: %w", file.Name, err)
	}
	defer src.Close()
	return p.storage.Save(dst, src)
}

func (p *Pipeline) cleanup(paths ...string) {
	for _, fp := range paths {
		if err := p.storage.Remove(fp); err != nil {
			p.logger.Warn().Err(err).Str("path", fp).Msg("Failed to clean up upload")
		}
	}
}

// generateThumbnail runs the chain best effort and records the result on the movie
func (p *Pipeline) generateThumbnail(ctx context.Context, movie *models.Movie, videoPath string) *media.ThumbnailResult {
	if p.thumbnails == nil {
		return nil
	}

	result, err := p.thumbnails.Generate(ctx, media.ThumbnailRequest{
		VideoPath: videoPath,
		VideoFile: movie.VideoFile,
		Title:     movie.Title,
	})
	if err != nil {
		p.logger.Warn().Err(err).Int64("movie_id", movie.ID).Msg("Thumbnail generation failed")
		return nil
	}
	if result == nil {
		return nil
	}

	if err := p.catalog.SetThumbnail(movie.ID, result.File, result.RealFrame); err != nil {
		p.logger.Error().Err(err).Int64("movie_id", movie.ID).Msg("Failed to record thumbnail")
		return nil
	}
	movie.ThumbnailFile = result.File
	movie.AutoGeneratedThumb = result.RealFrame
	return result
}

// Delete removes a movie with its files. The series folder goes too once empty.
func (p *Pipeline) Delete(ctx context.Context, id int64, actorID *int64, clientIP string) (*models.Movie, error) {
	movie, err := p.catalog.GetMovie(id)
	if err != nil {
		return nil, err
	}
	if err := p.catalog.DeleteMovie(id); err != nil {
		return nil, err
	}

	if videoPath, err := p.storage.VideoPath(movie.VideoFile); err == nil {
		p.cleanup(videoPath)
		if movie.IsSeries {
			if removed, err := p.storage.RemoveDirIfEmpty(filepath.Dir(videoPath)); err != nil {
				p.logger.Warn().Err(err).Str("series", movie.SeriesName).Msg("Failed to remove series folder")
			} else if removed {
				p.logger.Info().Str("series", movie.SeriesName).Msg("Removed empty series folder")
			}
		}
	}
	if movie.HasThumbnail() {
		if thumbPath, err := p.storage.ThumbnailPath(movie.ThumbnailFile); err == nil {
			p.cleanup(thumbPath)
		}
	}

	if err := p.access.LogAdminAction(actorID, clientIP, fmt.Sprintf("DELETE movie %d (%s)", movie.ID, movie.Title), true); err != nil {
		p.logger.Error().Err(err).Msg("Failed to write delete audit entry")
	}
	p.publish(ctx, events.MovieDeleted, map[string]interface{}{
		"movie_id":    movie.ID,
		"title":       movie.Title,
		"series_name": movie.SeriesName,
	})

	return movie, nil
}

// RegenerateThumbnail reruns the chain for one movie. A previous generated
// thumbnail is replaced; a custom one stays on disk.
func (p *Pipeline) RegenerateThumbnail(ctx context.Context, id int64) (*media.ThumbnailResult, error) {
	movie, err := p.catalog.GetMovie(id)
	if err != nil {
		return nil, err
	}
	videoPath, err := p.storage.VideoPath(movie.VideoFile)
	if err != nil {
		return nil, err
	}

	previous := movie.ThumbnailFile
	result := p.generateThumbnail(ctx, movie, videoPath)

	switch {
	case result == nil:
		// a failed run overwrites the derived file, so a generated thumbnail is gone
		if previous == media.ThumbnailName(movie.VideoFile) {
			if err := p.catalog.SetThumbnail(movie.ID, "", false); err != nil {
				return nil, err
			}
		}
	case previous != "" && previous != result.File && strings.HasPrefix(previous, media.AutoThumbPrefix):
		if thumbPath, err := p.storage.ThumbnailPath(previous); err == nil {
			p.cleanup(thumbPath)
		}
	}

	return result, nil
}

// Backfill generates thumbnails for up to limit movies that have none
func (p *Pipeline) Backfill(ctx context.Context, limit int) (*BackfillReport, error) {
	movies, err := p.catalog.MoviesWithoutThumbnail(limit)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{}
	for i := range movies {
		if ctx.Err() != nil {
			break
		}
		movie := &movies[i]
		report.Checked++

		videoPath, err := p.storage.VideoPath(movie.VideoFile)
		if err != nil {
			report.Failed++
			continue
		}
		if p.generateThumbnail(ctx, movie, videoPath) == nil {
			report.Failed++
			continue
		}
		report.Generated++
	}

	p.logger.Info().
		Int("checked", report.Checked).
		Int("generated", report.Generated).
		Int("failed", report.Failed).
		Msg("Thumbnail backfill finished")

	p.publish(ctx, events.ThumbnailBackfillCompleted, map[string]interface{}{
		"checked":   report.Checked,
		"generated": report.Generated,
		"failed":    report.Failed,
	})
	return report, ctx.Err()
}

// publish never fails the caller; a lost event is logged
func (p *Pipeline) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if err := p.publisher.Publish(ctx, events.NewEvent(eventType, payload)); err != nil {
		p.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
