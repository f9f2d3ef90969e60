package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"reelvault/internal/jobs"
	"reelvault/internal/library"
	"reelvault/internal/middleware"
	"reelvault/internal/pagination"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// ThumbnailQueue hands thumbnail work to the background worker
type ThumbnailQueue interface {
	EnqueueRegenerate(ctx context.Context, movieID int64) (string, error)
	EnqueueBackfill(ctx context.Context, limit int) (string, error)
}

// UploadHandler handles uploads and the admin movie and series views
type UploadHandler struct {
	pipeline *library.Pipeline
	catalog  *services.CatalogService
	queue    ThumbnailQueue
	config   library.PipelineConfig
	audit    auditor
}

// NewUploadHandler creates a new upload handler. Without a queue thumbnail
// work runs inside the request.
func NewUploadHandler(
	pipeline *library.Pipeline,
	catalog *services.CatalogService,
	access *services.AccessService,
	queue ThumbnailQueue,
	cfg library.PipelineConfig,
) *UploadHandler {
	return &UploadHandler{
		pipeline: pipeline,
		catalog:  catalog,
		queue:    queue,
		config:   cfg,
		audit:    auditor{access: access},
	}
}

// UploadInfo describes what may be uploaded and which series exist
func (h *UploadHandler) UploadInfo(c *fiber.Ctx) error {
	names, err := h.catalog.SeriesNames()
	if err != nil {
		return sendServiceError(c, err, "Series")
	}
	return c.JSON(fiber.Map{
		"video_extensions": h.config.VideoExtensions,
		"image_extensions": h.config.ImageExtensions,
		"series_names":     names,
	})
}

// ListMovies returns one page of the catalog, newest first
func (h *UploadHandler) ListMovies(c *fiber.Ctx) error {
	page, perPage := pagination.Params(c, 20)

	movies, total, err := h.catalog.ListMovies(perPage, pagination.Offset(page, perPage))
	if err != nil {
		return sendServiceError(c, err, "Movies")
	}

	return c.JSON(fiber.Map{
		"data":       movies,
		"pagination": pagination.Calculate(total, page, perPage),
	})
}

// ListSeries returns every series with its episode and season counts
func (h *UploadHandler) ListSeries(c *fiber.Ctx) error {
	series, err := h.catalog.ListSeries()
	if err != nil {
		return sendServiceError(c, err, "Series")
	}
	return c.JSON(fiber.Map{"data": series})
}

func formInt(c *fiber.Ctx, field string) (int, error) {
	raw := strings.TrimSpace(c.FormValue(field))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &library.ValidationError{Field: field, Message: "must be a non-negative whole number"}
	}
	return n, nil
}

func (h *UploadHandler) uploadInput(c *fiber.Ctx) (library.UploadInput, error) {
	in := library.UploadInput{
		Title:        c.FormValue("title"),
		Description:  c.FormValue("description"),
		Genre:        c.FormValue("genre"),
		ContentType:  c.FormValue("content_type"),
		SeriesName:   c.FormValue("series_name"),
		EpisodeTitle: c.FormValue("episode_title"),
		UploadedBy:   middleware.CurrentUserID(c),
		ClientIP:     middleware.ClientIP(c),
	}

	if fh, err := c.FormFile("video_file"); err == nil {
		in.Video = library.FromFileHeader(fh)
	}
	if fh, err := c.FormFile("thumbnail"); err == nil && fh.Filename != "" {
		in.Thumbnail = library.FromFileHeader(fh)
	}

	var err error
	if in.Duration, err = formInt(c, "duration"); err != nil {
		return in, err
	}
	if in.ReleaseYear, err = formInt(c, "release_year"); err != nil {
		return in, err
	}
	if in.Season, err = formInt(c, "season_number"); err != nil {
		return in, err
	}
	if in.Episode, err = formInt(c, "episode_number"); err != nil {
		return in, err
	}
	return in, nil
}

// Upload stores a video, organizing series episodes into their folder
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	in, err := h.uploadInput(c)

	var result *library.UploadResult
	if err == nil {
		result, err = h.pipeline.Upload(c.UserContext(), in)
	}

	var validation *library.ValidationError
	switch {
	case err == nil:
	case errors.Is(err, library.ErrNoFile):
		return utils.SendBadRequestError(c, "No video file selected")
	case errors.As(err, &validation):
		return utils.SendValidationError(c, validation.Field, validation.Message)
	default:
		name := ""
		if in.Video != nil {
			name = in.Video.Name
		}
		h.audit.record(c, fmt.Sprintf("UPLOAD FAILED %s", name), false)
		return sendServiceError(c, err, "Upload")
	}

	message := fmt.Sprintf("Movie %q uploaded", result.Movie.Title)
	if result.Movie.IsSeries {
		message = fmt.Sprintf("Episode %q of %s uploaded", result.Movie.Title, result.Movie.SeriesName)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":   message,
		"movie":     result.Movie,
		"thumbnail": result.Thumbnail,
		"inferred":  result.Inferred,
	})
}

// DeleteMovie removes a movie and its files
func (h *UploadHandler) DeleteMovie(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid movie ID")
	}

	movie, err := h.pipeline.Delete(c.UserContext(), id, middleware.CurrentUserID(c), middleware.ClientIP(c))
	if err != nil {
		if !services.IsNotFound(err) {
			h.audit.record(c, fmt.Sprintf("DELETE movie %d", id), false)
		}
		return sendServiceError(c, err, "Movie")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("%q deleted", movie.Title),
	})
}

// RegenerateThumbnail reruns the thumbnail chain for one movie, queued when a worker is available
func (h *UploadHandler) RegenerateThumbnail(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid movie ID")
	}
	if _, err := h.catalog.GetMovie(id); err != nil {
		return sendServiceError(c, err, "Movie")
	}

	if h.queue != nil {
		taskID, err := h.queue.EnqueueRegenerate(c.UserContext(), id)
		h.audit.record(c, fmt.Sprintf("QUEUE THUMBNAIL movie %d", id), err == nil)
		if err != nil {
			return sendServiceError(c, err, "Thumbnail job")
		}
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"message": "Thumbnail regeneration queued",
			"task_id": taskID,
		})
	}

	result, err := h.pipeline.RegenerateThumbnail(c.UserContext(), id)
	h.audit.record(c, fmt.Sprintf("REGENERATE THUMBNAIL movie %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Thumbnail")
	}
	if result == nil {
		return c.JSON(fiber.Map{
			"message":   "No thumbnail could be generated",
			"thumbnail": nil,
		})
	}
	return c.JSON(fiber.Map{
		"message":   "Thumbnail regenerated",
		"thumbnail": result,
	})
}

// BackfillThumbnails generates thumbnails for movies that have none
func (h *UploadHandler) BackfillThumbnails(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", jobs.DefaultBackfillLimit)
	if limit <= 0 {
		limit = jobs.DefaultBackfillLimit
	}

	if h.queue != nil {
		taskID, err := h.queue.EnqueueBackfill(c.UserContext(), limit)
		h.audit.record(c, "QUEUE THUMBNAIL BACKFILL", err == nil)
		if err != nil {
			return sendServiceError(c, err, "Thumbnail job")
		}
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"message": "Thumbnail backfill queued",
			"task_id": taskID,
		})
	}

	report, err := h.pipeline.Backfill(c.UserContext(), limit)
	h.audit.record(c, "THUMBNAIL BACKFILL", err == nil)
	if err != nil {
		return sendServiceError(c, err, "Thumbnails")
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Generated %d of %d missing thumbnails", report.Generated, report.Checked),
		"report":  report,
	})
}
