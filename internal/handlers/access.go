package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"reelvault/internal/events"
	"reelvault/internal/logging"
	"reelvault/internal/middleware"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// AccessHandler lets blocked addresses ask for access and explains what the gate sees
type AccessHandler struct {
	access    *services.AccessService
	resolver  *middleware.ClientIPResolver
	publisher events.Publisher
	logger    *zerolog.Logger
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(access *services.AccessService, resolver *middleware.ClientIPResolver, publisher events.Publisher) *AccessHandler {
	return &AccessHandler{
		access:    access,
		resolver:  resolver,
		publisher: publisher,
		logger:    logging.WithModule("access"),
	}
}

// RequestStatus reports whether the caller is whitelisted or already waiting
func (h *AccessHandler) RequestStatus(c *fiber.Ctx) error {
	ip := middleware.ClientIP(c)

	whitelisted, err := h.access.IsWhitelisted(ip)
	if err != nil {
		return sendServiceError(c, err, "Whitelist")
	}
	pending, err := h.access.HasPendingIPRequest(ip)
	if err != nil {
		return sendServiceError(c, err, "Access request")
	}

	return c.JSON(fiber.Map{
		"ip":                  ip,
		"whitelisted":         whitelisted,
		"has_pending_request": pending,
	})
}

// RequestAccess files an access request for the caller's address
func (h *AccessHandler) RequestAccess(c *fiber.Ctx) error {
	ip := middleware.ClientIP(c)

	var body struct {
		Name   string `json:"name" form:"name"`
		Reason string `json:"reason" form:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	whitelisted, err := h.access.IsWhitelisted(ip)
	if err != nil {
		return sendServiceError(c, err, "Whitelist")
	}
	if whitelisted {
		return c.JSON(fiber.Map{
			"status":  "already_whitelisted",
			"message": "Your address already has access",
			"ip":      ip,
		})
	}

	req, err := h.access.CreateIPRequest(ip, body.Name, body.Reason)
	if errors.Is(err, services.ErrConflict) {
		return utils.SendConflictError(c, "An access request for your address is already pending")
	}
	if err != nil {
		return sendServiceError(c, err, "Access request")
	}

	if err := h.access.LogAccess(nil, ip, "IP ACCESS REQUESTED", true); err != nil {
		h.logger.Warn().Err(err).Str("ip", ip).Msg("Failed to write access log")
	}
	h.logger.Info().Str("ip", ip).Int64("request_id", req.ID).Msg("IP access requested")
	publish(c, h.publisher, events.IPAccessRequestCreated, map[string]interface{}{
		"request_id": req.ID,
		"ip_address": req.IPAddress,
		"name":       req.Name,
	})

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"status":  "submitted",
		"message": "Your request has been submitted for review",
		"request": req,
	})
}

// DebugIP shows how the caller's address was resolved and whether it is whitelisted
func (h *AccessHandler) DebugIP(c *fiber.Ctx) error {
	ip := middleware.ClientIP(c)

	active, err := h.access.ActiveAddresses()
	if err != nil {
		return sendServiceError(c, err, "Whitelist")
	}
	whitelisted, err := h.access.IsWhitelisted(ip)
	if err != nil {
		return sendServiceError(c, err, "Whitelist")
	}

	return c.JSON(fiber.Map{
		"detected_ip":       ip,
		"remote_addr":       middleware.Peer(c),
		"forwarded_headers": h.resolver.ForwardedHeaders(c),
		"whitelist":         active,
		"is_whitelisted":    whitelisted,
	})
}
