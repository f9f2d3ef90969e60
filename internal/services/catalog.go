package services

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"reelvault/internal/models"
)

// episodeOrder is the canonical order of episodes within a series
const episodeOrder = "season_number ASC, episode_number ASC, id ASC"

// CatalogService reads and writes the movie catalog
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ContentItem is one entry of the home page: a standalone movie or a whole series
type ContentItem struct {
	Type   string         `json:"type"`
	Movie  *models.Movie  `json:"movie,omitempty"`
	Series *models.Series `json:"series,omitempty"`
}

// CatalogStats summarizes the catalog for the dashboard
type CatalogStats struct {
	Movies   int64 `json:"movies"`
	Episodes int64 `json:"episodes"`
	Series   int64 `json:"series"`
}

func (s *CatalogService) CreateMovie(movie *models.Movie) error {
	if movie.UploadedAt.IsZero() {
		movie.UploadedAt = time.Now().UTC()
	}
	if err := s.db.Create(movie).Error; err != nil {
		return fmt.Errorf("failed to create movie: %w", err)
	}
	return nil
}

func (s *CatalogService) GetMovie(id int64) (*models.Movie, error) {
	var movie models.Movie
	if err := s.db.First(&movie, id).Error; err != nil {
		return nil, notFound(err, "movie")
	}
	return &movie, nil
}

// SetThumbnail points the movie at a new thumbnail file
func (s *CatalogService) SetThumbnail(id int64, file string, autoGenerated bool) error {
	err := s.db.Model(&models.Movie{}).Where("id = ?", id).Updates(map[string]interface{}{
		"thumbnail_file":       file,
		"auto_generated_thumb": autoGenerated,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update thumbnail: %w", err)
	}
	return nil
}

func (s *CatalogService) DeleteMovie(id int64) error {
	result := s.db.Delete(&models.Movie{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete movie: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("movie: %w", ErrNotFound)
	}
	return nil
}

// ListMovies returns one page of the whole catalog, newest first
func (s *CatalogService) ListMovies(limit, offset int) ([]models.Movie, int64, error) {
	var movies []models.Movie
	var total int64

	if err := s.db.Model(&models.Movie{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count movies: %w", err)
	}

	err := s.db.Order("uploaded_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&movies).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch movies: %w", err)
	}

	return movies, total, nil
}

// RecentUploads returns the newest uploads of any kind
func (s *CatalogService) RecentUploads(limit int) ([]models.Movie, error) {
	var movies []models.Movie
	if err := s.db.Order("uploaded_at DESC, id DESC").Limit(limit).Find(&movies).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch recent uploads: %w", err)
	}
	return movies, nil
}

// FeaturedMovie returns the newest standalone movie with a thumbnail, or nil
func (s *CatalogService) FeaturedMovie() (*models.Movie, error) {
	var movies []models.Movie
	err := s.db.Where("is_series = ? AND thumbnail_file <> ?", false, "").
		Order("uploaded_at DESC, id DESC").
		Limit(1).
		Find(&movies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch featured movie: %w", err)
	}
	if len(movies) == 0 {
		return nil, nil
	}
	return &movies[0], nil
}

// ListSeries derives every series from its episodes, newest upload first
func (s *CatalogService) ListSeries() ([]models.Series, error) {
	var episodes []models.Movie
	err := s.db.Where("is_series = ? AND series_name <> ?", true, "").
		Order("series_name ASC, " + episodeOrder).
		Find(&episodes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch episodes: %w", err)
	}

	var series []models.Series
	index := make(map[string]int)
	seasons := make(map[string]map[int]struct{})

	for _, ep := range episodes {
		i, ok := index[ep.SeriesName]
		if !ok {
			i = len(series)
			index[ep.SeriesName] = i
			series = append(series, models.Series{Name: ep.SeriesName})
			seasons[ep.SeriesName] = make(map[int]struct{})
		}

		entry := &series[i]
		entry.EpisodeCount++
		seasons[ep.SeriesName][ep.SeasonNumber] = struct{}{}
		if entry.ThumbnailFile == "" && ep.HasThumbnail() {
			entry.ThumbnailFile = ep.ThumbnailFile
		}
		if ep.UploadedAt.After(entry.LatestUpload) {
			entry.LatestUpload = ep.UploadedAt
		}
	}

	for i := range series {
		series[i].SeasonCount = int64(len(seasons[series[i].Name]))
	}

	sort.SliceStable(series, func(a, b int) bool {
		return series[a].LatestUpload.After(series[b].LatestUpload)
	})

	return series, nil
}

// SeriesEpisodes returns the episodes of a series in season/episode order
func (s *CatalogService) SeriesEpisodes(name string) ([]models.Movie, error) {
	var episodes []models.Movie
	err := s.db.Where("is_series = ? AND series_name = ?", true, name).
		Order(episodeOrder).
		Find(&episodes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch episodes: %w", err)
	}
	return episodes, nil
}

// SeriesNames lists the distinct series names, alphabetically
func (s *CatalogService) SeriesNames() ([]string, error) {
	var names []string
	err := s.db.Model(&models.Movie{}).
		Where("is_series = ? AND series_name <> ?", true, "").
		Distinct("series_name").
		Order("series_name ASC").
		Pluck("series_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch series names: %w", err)
	}
	return names, nil
}

// GroupedContent merges standalone movies and series into one newest-first list
func (s *CatalogService) GroupedContent() ([]ContentItem, error) {
	var movies []models.Movie
	if err := s.db.Where("is_series = ?", false).Order("uploaded_at DESC, id DESC").Find(&movies).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch movies: %w", err)
	}

	series, err := s.ListSeries()
	if err != nil {
		return nil, err
	}

	items := make([]ContentItem, 0, len(movies)+len(series))
	stamps := make([]time.Time, 0, cap(items))
	for i := range movies {
		items = append(items, ContentItem{Type: "movie", Movie: &movies[i]})
		stamps = append(stamps, movies[i].UploadedAt)
	}
	for i := range series {
		items = append(items, ContentItem{Type: "series", Series: &series[i]})
		stamps = append(stamps, series[i].LatestUpload)
	}

	sort.Stable(byNewest{items: items, stamps: stamps})
	return items, nil
}

type byNewest struct {
	items  []ContentItem
	stamps []time.Time
}

func (b byNewest) Len() int           { return len(b.items) }
func (b byNewest) Less(i, j int) bool { return b.stamps[i].After(b.stamps[j]) }
func (b byNewest) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.stamps[i], b.stamps[j] = b.stamps[j], b.stamps[i]
}

// MoviesWithoutThumbnail lists movies that have no thumbnail, oldest first
func (s *CatalogService) MoviesWithoutThumbnail(limit int) ([]models.Movie, error) {
	var movies []models.Movie
	query := s.db.Where("thumbnail_file = ? OR thumbnail_file IS NULL", "").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&movies).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch movies without thumbnail: %w", err)
	}
	return movies, nil
}

// Stats counts standalone movies, episodes and series
func (s *CatalogService) Stats() (*CatalogStats, error) {
	stats := &CatalogStats{}
	if err := s.db.Model(&models.Movie{}).Where("is_series = ?", false).Count(&stats.Movies).Error; err != nil {
		return nil, fmt.Errorf("failed to count movies: %w", err)
	}
	if err := s.db.Model(&models.Movie{}).Where("is_series = ?", true).Count(&stats.Episodes).Error; err != nil {
		return nil, fmt.Errorf("failed to count episodes: %w", err)
	}
	err := s.db.Model(&models.Movie{}).
		Where("is_series = ? AND series_name <> ?", true, "").
		Distinct("series_name").
		Count(&stats.Series).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count series: %w", err)
	}
	return stats, nil
}
