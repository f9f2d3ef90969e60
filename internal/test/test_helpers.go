package test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reelvault/internal/models"
	"reelvault/internal/utils"
)

// GetTestDB opens a private in-memory sqlite database with every table migrated
func GetTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// the shared-cache database lives as long as one connection stays open
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))

	return db
}

// CreateTestUser creates a test user in the database
func CreateTestUser(t *testing.T, db *gorm.DB, username, password string, isAdmin bool) *models.User {
	t.Helper()

	hashedPassword, err := utils.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		PasswordHash: hashedPassword,
		IsAdmin:      isAdmin,
	}
	require.NoError(t, db.Create(user).Error)

	return user
}

// WhitelistIP adds an active whitelist entry
func WhitelistIP(t *testing.T, db *gorm.DB, ip string) *models.IPWhitelistEntry {
	t.Helper()

	entry := &models.IPWhitelistEntry{
		IPAddress: ip,
		AddedAt:   time.Now().UTC(),
		IsActive:  true,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

// CreateTestMovie inserts a movie row without touching the file system
func CreateTestMovie(t *testing.T, db *gorm.DB, movie *models.Movie) *models.Movie {
	t.Helper()

	if movie.VideoFile == "" {
		movie.VideoFile = uuid.NewString() + ".mp4"
	}
	if movie.UploadedAt.IsZero() {
		movie.UploadedAt = time.Now().UTC()
	}
	require.NoError(t, db.Create(movie).Error)
	return movie
}

// CountRows counts rows of the given model
func CountRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}
