package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"reelvault/internal/database"
	"reelvault/internal/logging"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// SystemHandler reinitializes the database on demand
type SystemHandler struct {
	db     *gorm.DB
	seed   *database.SeedData
	audit  auditor
	logger *zerolog.Logger
}

// NewSystemHandler creates a new system handler. A nil seed uses the built-in defaults.
func NewSystemHandler(db *gorm.DB, seed *database.SeedData, access *services.AccessService) *SystemHandler {
	return &SystemHandler{
		db:     db,
		seed:   seed,
		audit:  auditor{access: access},
		logger: logging.WithModule("database"),
	}
}

// InitDB reruns migrations and seeding. Seeding only fills empty tables.
func (h *SystemHandler) InitDB(c *fiber.Ctx) error {
	if err := database.NewMigrationManager(h.db, h.logger).Migrate(); err != nil {
		h.logger.Error().Err(err).Msg("Manual migration failed")
		h.audit.record(c, "INIT DB", false)
		return utils.SendInternalServerError(c, "migration failed")
	}
	if err := database.Seed(h.db, h.seed, h.logger); err != nil {
		h.logger.Error().Err(err).Msg("Manual seeding failed")
		h.audit.record(c, "INIT DB", false)
		return utils.SendInternalServerError(c, "seeding failed")
	}

	h.audit.record(c, "INIT DB", true)
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Database initialized",
	})
}
