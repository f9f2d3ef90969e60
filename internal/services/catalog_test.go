package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reelvault/internal/models"
	"reelvault/internal/test"
)

func episode(t *testing.T, db *gorm.DB, series string, season, ep int, thumb string, at time.Time) *models.Movie {
	t.Helper()
	return test.CreateTestMovie(t, db, &models.Movie{
		Title:         series,
		IsSeries:      true,
		SeriesName:    series,
		SeasonNumber:  season,
		EpisodeNumber: ep,
		ThumbnailFile: thumb,
		UploadedAt:    at,
	})
}

func TestCatalogService_SeriesEpisodesOrder(t *testing.T) {
	db := test.GetTestDB(t)
	catalog := NewCatalogService(db)
	now := time.Now().UTC()

	s2e1 := episode(t, db, "Show", 2, 1, "", now)
	s1e2 := episode(t, db, "Show", 1, 2, "", now)
	s1e1a := episode(t, db, "Show", 1, 1, "", now)
	s1e1b := episode(t, db, "Show", 1, 1, "", now)
	episode(t, db, "Other", 1, 1, "", now)

	episodes, err := catalog.SeriesEpisodes("Show")
	require.NoError(t, err)

	var ids []int64
	for _, e := range episodes {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{s1e1a.ID, s1e1b.ID, s1e2.ID, s2e1.ID}, ids)

	episodes, err = catalog.SeriesEpisodes("Missing")
	require.NoError(t, err)
	assert.Empty(t, episodes)
}

func TestCatalogService_ListSeries(t *testing.T) {
	db := test.GetTestDB(t)
	catalog := NewCatalogService(db)
	base := time.Now().UTC().Add(-time.Hour)

	episode(t, db, "Alpha", 1, 2, "alpha_s1e2.jpg", base)
	episode(t, db, "Alpha", 1, 1, "", base.Add(time.Minute))
	episode(t, db, "Alpha", 2, 1, "alpha_s2e1.jpg", base.Add(2*time.Minute))
	episode(t, db, "Beta", 1, 1, "beta.jpg", base.Add(10*time.Minute))

	series, err := catalog.ListSeries()
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, "Beta", series[0].Name)
	assert.Equal(t, "Alpha", series[1].Name)
	assert.Equal(t, int64(3), series[1].EpisodeCount)
	assert.Equal(t, int64(2), series[1].SeasonCount)
	// S1E1 has no thumbnail, so the next episode in order provides it
	assert.Equal(t, "alpha_s1e2.jpg", series[1].ThumbnailFile)

	names, err := catalog.SeriesNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, names)
}

func TestCatalogService_FeaturedAndGrouped(t *testing.T) {
	db := test.GetTestDB(t)
	catalog := NewCatalogService(db)
	base := time.Now().UTC().Add(-time.Hour)

	featured, err := catalog.FeaturedMovie()
	require.NoError(t, err)
	assert.Nil(t, featured)

	old := test.CreateTestMovie(t, db, &models.Movie{Title: "Old", ThumbnailFile: "old.jpg", UploadedAt: base})
	test.CreateTestMovie(t, db, &models.Movie{Title: "No Thumb", UploadedAt: base.Add(30 * time.Minute)})
	episode(t, db, "Show", 1, 1, "show.jpg", base.Add(20*time.Minute))

	featured, err = catalog.FeaturedMovie()
	require.NoError(t, err)
	require.NotNil(t, featured)
	assert.Equal(t, old.ID, featured.ID)

	items, err := catalog.GroupedContent()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "No Thumb", items[0].Movie.Title)
	assert.Equal(t, "series", items[1].Type)
	assert.Equal(t, "Show", items[1].Series.Name)
	assert.Equal(t, int64(1), items[1].Series.EpisodeCount)
	assert.Equal(t, "Old", items[2].Movie.Title)
}

func TestCatalogService_ThumbnailsAndDelete(t *testing.T) {
	db := test.GetTestDB(t)
	catalog := NewCatalogService(db)

	movie := &models.Movie{Title: "Film", VideoFile: "film.mp4"}
	require.NoError(t, catalog.CreateMovie(movie))
	assert.False(t, movie.UploadedAt.IsZero())

	missing, err := catalog.MoviesWithoutThumbnail(0)
	require.NoError(t, err)
	assert.Len(t, missing, 1)

	require.NoError(t, catalog.SetThumbnail(movie.ID, "auto_thumb_film.jpg", true))
	stored, err := catalog.GetMovie(movie.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto_thumb_film.jpg", stored.ThumbnailFile)
	assert.True(t, stored.AutoGeneratedThumb)

	missing, err = catalog.MoviesWithoutThumbnail(0)
	require.NoError(t, err)
	assert.Empty(t, missing)

	stats, err := catalog.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Movies)

	require.NoError(t, catalog.DeleteMovie(movie.ID))
	assert.True(t, errors.Is(catalog.DeleteMovie(movie.ID), ErrNotFound))

	_, err = catalog.GetMovie(movie.ID)
	assert.True(t, IsNotFound(err))
}

func TestCatalogService_ListMovies(t *testing.T) {
	db := test.GetTestDB(t)
	catalog := NewCatalogService(db)
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		test.CreateTestMovie(t, db, &models.Movie{Title: "Film", UploadedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	episode(t, db, "Show", 1, 1, "", base)
	episode(t, db, "Show", 1, 2, "", base)

	movies, total, err := catalog.ListMovies(3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Len(t, movies, 3)

	recent, err := catalog.RecentUploads(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	stats, err := catalog.Stats()
	require.NoError(t, err)
	assert.Equal(t, &CatalogStats{Movies: 5, Episodes: 2, Series: 1}, stats)
}
