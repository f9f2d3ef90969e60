package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"reelvault/internal/models"
)

// MigrationManager manages database migrations
type MigrationManager struct {
	db     *gorm.DB
	logger *zerolog.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *gorm.DB, logger *zerolog.Logger) *MigrationManager {
	return &MigrationManager{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates every table from the models
func (m *MigrationManager) Migrate() error {
	if err := m.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	if m.logger != nil {
		m.logger.Info().Msg("Database migrations completed successfully")
	}
	return nil
}
