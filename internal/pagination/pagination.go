package pagination

import (
	"math"

	"github.com/gofiber/fiber/v2"
)

// MaxPerPage caps the page size a client may ask for
const MaxPerPage = 100

// Metadata describes one page of a listing
type Metadata struct {
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	HasPrevious bool  `json:"has_previous"`
	HasNext     bool  `json:"has_next"`
}

// Params extracts page and per_page from the query string
func Params(c *fiber.Ctx, defaultPerPage int) (page int, perPage int) {
	page = c.QueryInt("page", 1)
	perPage = c.QueryInt("per_page", defaultPerPage)

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	return page, perPage
}

// Offset converts a page number into a query offset
func Offset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	return (page - 1) * perPage
}

// Calculate builds the metadata for a listing of total rows
func Calculate(total int64, page, perPage int) Metadata {
	if perPage < 1 {
		perPage = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))

	currentPage := page
	if currentPage < 1 {
		currentPage = 1
	}

	return Metadata{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		HasPrevious: total > 0 && currentPage > 1,
		HasNext:     currentPage < totalPages,
	}
}
