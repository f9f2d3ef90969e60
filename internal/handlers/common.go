package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"reelvault/internal/events"
	"reelvault/internal/logging"
	"reelvault/internal/middleware"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// paramID parses a positive numeric route parameter
func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}

// actorID returns the id of the signed-in caller; admin routes always have one
func actorID(c *fiber.Ctx) int64 {
	if id := middleware.CurrentUserID(c); id != nil {
		return *id
	}
	return 0
}

// sendServiceError maps service sentinel errors onto HTTP responses
func sendServiceError(c *fiber.Ctx, err error, resource string) error {
	switch {
	case services.IsNotFound(err):
		return utils.SendNotFoundError(c, resource)
	case errors.Is(err, services.ErrInvalidInput):
		return utils.SendValidationError(c, strings.ToLower(resource), strings.TrimPrefix(err.Error(), services.ErrInvalidInput.Error()+": "))
	case errors.Is(err, services.ErrConflict):
		return utils.SendConflictError(c, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		return utils.SendConflictError(c, err.Error())
	case errors.Is(err, services.ErrForbiddenSelf):
		return utils.SendForbiddenError(c, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		return utils.SendUnauthorizedError(c, "Invalid credentials")
	}

	logging.GetGlobalLogger().WithContext(c.UserContext()).Error().Err(err).
		Str("path", c.Path()).
		Str("resource", resource).
		Msg("Request failed")
	return utils.SendInternalServerError(c, "failed to process "+strings.ToLower(resource))
}

// auditor appends admin log entries on behalf of a handler
type auditor struct {
	access *services.AccessService
}

func (a auditor) record(c *fiber.Ctx, action string, success bool) {
	if err := a.access.LogAdminAction(middleware.CurrentUserID(c), middleware.ClientIP(c), action, success); err != nil {
		logging.WithModule("admin").Warn().Err(err).Str("action", action).Msg("Failed to write admin log")
	}
}

// publish delivers an event; a lost event never fails the request
func publish(c *fiber.Ctx, publisher events.Publisher, eventType string, payload map[string]interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(c.UserContext(), events.NewEvent(eventType, payload)); err != nil {
		logging.WithModule("events").Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

// parseOptionalBody parses the body when there is one
func parseOptionalBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}
