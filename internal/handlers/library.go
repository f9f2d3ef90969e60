package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"

	"reelvault/internal/events"
	"reelvault/internal/library"
	"reelvault/internal/middleware"
	"reelvault/internal/models"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// recentRequestsLimit is how many requests My Requests shows
const recentRequestsLimit = 20

// LibraryHandler serves the browsing, playback and request pages
type LibraryHandler struct {
	catalog   *services.CatalogService
	requests  *services.RequestService
	storage   *library.Storage
	publisher events.Publisher
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(
	catalog *services.CatalogService,
	requests *services.RequestService,
	storage *library.Storage,
	publisher events.Publisher,
) *LibraryHandler {
	return &LibraryHandler{
		catalog:   catalog,
		requests:  requests,
		storage:   storage,
		publisher: publisher,
	}
}

// Home returns the featured movie and the grouped catalog
func (h *LibraryHandler) Home(c *fiber.Ctx) error {
	featured, err := h.catalog.FeaturedMovie()
	if err != nil {
		return sendServiceError(c, err, "Catalog")
	}
	content, err := h.catalog.GroupedContent()
	if err != nil {
		return sendServiceError(c, err, "Catalog")
	}

	return c.JSON(fiber.Map{
		"featured": featured,
		"content":  content,
	})
}

// Series lists the episodes of one series in order
func (h *LibraryHandler) Series(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" {
		return utils.SendBadRequestError(c, "Invalid series name")
	}

	episodes, err := h.catalog.SeriesEpisodes(name)
	if err != nil {
		return sendServiceError(c, err, "Series")
	}
	if len(episodes) == 0 {
		return utils.SendNotFoundError(c, "Series")
	}

	return c.JSON(fiber.Map{
		"series_name": name,
		"episodes":    episodes,
	})
}

// Watch returns one movie with its playback and thumbnail URLs
func (h *LibraryHandler) Watch(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid movie ID")
	}

	movie, err := h.catalog.GetMovie(id)
	if err != nil {
		return sendServiceError(c, err, "Movie")
	}

	resp := fiber.Map{
		"movie":     movie,
		"video_url": "/video/" + movie.VideoFile,
	}
	if movie.HasThumbnail() {
		resp["thumbnail_url"] = "/thumbnail/" + movie.ThumbnailFile
	}
	if movie.IsSeries && movie.SeriesName != "" {
		episodes, err := h.catalog.SeriesEpisodes(movie.SeriesName)
		if err != nil {
			return sendServiceError(c, err, "Series")
		}
		resp["episodes"] = episodes
	}

	return c.JSON(resp)
}

// Video streams a stored video. Paths that leave the upload directory are rejected.
func (h *LibraryHandler) Video(c *fiber.Ctx) error {
	rel, err := url.PathUnescape(c.Params("*"))
	if err != nil || hasDotDot(rel) {
		return utils.SendBadRequestError(c, "Invalid path")
	}
	return h.sendStored(c, rel, h.storage.VideoPath, "Video")
}

// Thumbnail serves a thumbnail image
func (h *LibraryHandler) Thumbnail(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("filename"))
	if err != nil {
		return utils.SendBadRequestError(c, "Invalid file name")
	}
	return h.sendStored(c, name, h.storage.ThumbnailPath, "Thumbnail")
}

func hasDotDot(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func (h *LibraryHandler) sendStored(c *fiber.Ctx, name string, resolve func(string) (string, error), resource string) error {
	full, err := resolve(name)
	if errors.Is(err, library.ErrOutsideRoot) {
		return utils.SendBadRequestError(c, "Invalid path")
	}
	if err != nil {
		return sendServiceError(c, err, resource)
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return utils.SendNotFoundError(c, resource)
	}
	return c.SendFile(full)
}

// Profile returns the caller with a count of their requests per status
func (h *LibraryHandler) Profile(c *fiber.Ctx) error {
	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		return utils.SendUnauthorizedError(c, "Authentication required")
	}

	counts, err := h.requests.UserRequestCounts(user.ID)
	if err != nil {
		return sendServiceError(c, err, "Requests")
	}

	return c.JSON(fiber.Map{
		"user":           user,
		"request_counts": counts,
	})
}

// MyRequests returns the caller's most recent requests
func (h *LibraryHandler) MyRequests(c *fiber.Ctx) error {
	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		return utils.SendUnauthorizedError(c, "Authentication required")
	}

	requests, err := h.requests.UserRequests(user.ID, recentRequestsLimit)
	if err != nil {
		return sendServiceError(c, err, "Requests")
	}
	return c.JSON(fiber.Map{"data": requests})
}

type movieRequestBody struct {
	Title          string `json:"title" form:"title"`
	Description    string `json:"description" form:"description"`
	RequestType    string `json:"request_type" form:"request_type"`
	Genre          string `json:"genre" form:"genre"`
	ReleaseYear    int    `json:"release_year" form:"release_year"`
	SeriesName     string `json:"series_name" form:"series_name"`
	SeasonNumber   int    `json:"season_number" form:"season_number"`
	EpisodeNumber  int    `json:"episode_number" form:"episode_number"`
	IMDbLink       string `json:"imdb_link" form:"imdb_link"`
	AdditionalInfo string `json:"additional_info" form:"additional_info"`
}

// RequestMovie files a request for a movie or series
func (h *LibraryHandler) RequestMovie(c *fiber.Ctx) error {
	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		return utils.SendUnauthorizedError(c, "Authentication required")
	}

	var body movieRequestBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	req := &models.MovieRequest{
		UserID:         user.ID,
		Title:          body.Title,
		Description:    body.Description,
		RequestType:    body.RequestType,
		Genre:          body.Genre,
		ReleaseYear:    body.ReleaseYear,
		SeriesName:     body.SeriesName,
		SeasonNumber:   body.SeasonNumber,
		EpisodeNumber:  body.EpisodeNumber,
		IMDbLink:       body.IMDbLink,
		AdditionalInfo: body.AdditionalInfo,
	}
	if err := h.requests.CreateRequest(req); err != nil {
		return sendServiceError(c, err, "Request")
	}

	publish(c, h.publisher, events.MovieRequestCreated, map[string]interface{}{
		"request_id":   req.ID,
		"user_id":      user.ID,
		"title":        req.Title,
		"request_type": req.RequestType,
	})

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Request submitted",
		"request": req,
	})
}
