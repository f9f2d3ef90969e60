package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/rs/zerolog"

	"reelvault/internal/logging"
	"reelvault/internal/middleware"
	"reelvault/internal/services"
	"reelvault/internal/session"
	"reelvault/internal/utils"
)

// AuthHandler handles sign-in, registration and API tokens
type AuthHandler struct {
	authService *services.AuthService
	access      *services.AccessService
	sessions    *fibersession.Store
	logger      *zerolog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, access *services.AccessService, sessions *fibersession.Store) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		access:      access,
		sessions:    sessions,
		logger:      logging.WithModule("auth"),
	}
}

type credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (h *AuthHandler) state(c *fiber.Ctx) fiber.Map {
	state := fiber.Map{
		"authenticated": false,
		"rules": fiber.Map{
			"username_min_length": utils.MinUsernameLength,
			"password_min_length": utils.MinPasswordLength,
			"password_max_bytes":  utils.MaxPasswordBytes,
		},
	}
	if user, ok := middleware.GetUserFromContext(c); ok {
		state["authenticated"] = true
		state["user"] = user
	}
	return state
}

// LoginInfo reports the session state and the credential rules
func (h *AuthHandler) LoginInfo(c *fiber.Ctx) error {
	return c.JSON(h.state(c))
}

// RegisterInfo reports the session state and the credential rules
func (h *AuthHandler) RegisterInfo(c *fiber.Ctx) error {
	return c.JSON(h.state(c))
}

func (h *AuthHandler) logAccess(c *fiber.Ctx, userID *int64, action string, success bool) {
	if err := h.access.LogAccess(userID, middleware.ClientIP(c), action, success); err != nil {
		h.logger.Warn().Err(err).Str("action", action).Msg("Failed to write access log")
	}
}

// Login verifies the credentials and starts a session
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return utils.SendBadRequestError(c, "Username and password are required")
	}

	user, err := h.authService.Login(req.Username, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		h.logAccess(c, nil, fmt.Sprintf("LOGIN FAILED %s", req.Username), false)
		return utils.SendUnauthorizedError(c, "Invalid credentials")
	}
	if err != nil {
		return sendServiceError(c, err, "Login")
	}

	if err := session.SignIn(h.sessions, c, user.ID); err != nil {
		h.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to start session")
		return utils.SendInternalServerError(c, "failed to start session")
	}
	h.logAccess(c, &user.ID, "LOGIN", true)
	h.logger.Info().Int64("user_id", user.ID).Str("ip", middleware.ClientIP(c)).Msg("User signed in")

	return c.JSON(fiber.Map{
		"message": "Logged in",
		"user":    user,
	})
}

// Register creates a regular account
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}
	if err := utils.ValidateUsername(req.Username); err != nil {
		return utils.SendValidationError(c, "username", err.Error())
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return utils.SendValidationError(c, "password", err.Error())
	}

	user, err := h.authService.Register(req.Username, req.Password)
	if errors.Is(err, services.ErrConflict) {
		return utils.SendConflictError(c, "Username already exists")
	}
	if err != nil {
		return sendServiceError(c, err, "User")
	}

	h.logAccess(c, &user.ID, "REGISTER", true)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful, please log in",
		"user":    user,
	})
}

// Logout ends the session
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	if err := session.SignOut(h.sessions, c); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to destroy session")
	}
	if userID != nil {
		h.logAccess(c, userID, "LOGOUT", true)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Token exchanges credentials for a bearer token
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return utils.SendBadRequestError(c, "Username and password are required")
	}

	token, user, err := h.authService.IssueToken(strings.TrimSpace(req.Username), req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		h.logAccess(c, nil, fmt.Sprintf("TOKEN FAILED %s", req.Username), false)
		return utils.SendUnauthorizedError(c, "Invalid credentials")
	}
	if err != nil {
		return sendServiceError(c, err, "Token")
	}

	h.logAccess(c, &user.ID, "TOKEN ISSUED", true)
	return c.JSON(fiber.Map{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   token.ExpiresIn,
		"user":         user,
	})
}
