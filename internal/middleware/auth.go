package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"

	"reelvault/internal/logging"
	"reelvault/internal/models"
	"reelvault/internal/services"
	"reelvault/internal/session"
	"reelvault/internal/utils"
)

const userKey = "user"

// AuthMiddleware resolves who is calling and guards routes by role
type AuthMiddleware struct {
	authService *services.AuthService
	sessions    *fibersession.Store
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService *services.AuthService, sessions *fibersession.Store) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		sessions:    sessions,
	}
}

// Identity loads the caller from a bearer token or, failing that, from the
// session. The user row is always reloaded so a revoked admin flag or a
// deleted account takes effect on the next request. It never rejects a
// request except for a bad bearer token.
func (m *AuthMiddleware) Identity() fiber.Handler {
	logger := logging.WithModule("auth")

	return func(c *fiber.Ctx) error {
		var userID int64

		if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
			claims, err := m.authService.ValidateToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				return utils.SendUnauthorizedError(c, "Invalid or expired token")
			}
			userID = claims.UserID
		} else if m.sessions != nil {
			id, ok, err := session.UserID(m.sessions, c)
			if err != nil {
				logger.Warn().Err(err).Msg("Session lookup failed, continuing anonymously")
			} else if ok {
				userID = id
			}
		}

		if userID > 0 {
			user, err := m.authService.ResolveUser(userID)
			switch {
			case err == nil:
				setUser(c, user)
			case services.IsNotFound(err):
				// deleted accounts fall back to anonymous
			default:
				logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user")
				return utils.SendInternalServerError(c, "failed to load user")
			}
		}

		return c.Next()
	}
}

func setUser(c *fiber.Ctx, user *models.User) {
	c.Locals(userKey, user)
	c.Locals("user_id", user.ID)
	c.Locals("username", user.Username)
	c.Locals("is_admin", user.IsAdmin)
	c.SetUserContext(logging.ContextWithUserID(c.UserContext(), user.ID))
}

// RequireAuth rejects anonymous callers with 401
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := GetUserFromContext(c); !ok {
			return utils.SendUnauthorizedError(c, "Authentication required")
		}
		return c.Next()
	}
}

// AdminOnly rejects every caller without the admin flag with 403, signed in or not
func (m *AuthMiddleware) AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUserFromContext(c)
		if !ok || !user.IsAdmin {
			return utils.SendForbiddenError(c, "Admin access required")
		}
		return c.Next()
	}
}

// GetUserFromContext returns the caller resolved by Identity
func GetUserFromContext(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userKey).(*models.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// CurrentUserID returns the caller's id, or nil for anonymous callers
func CurrentUserID(c *fiber.Ctx) *int64 {
	user, ok := GetUserFromContext(c)
	if !ok {
		return nil
	}
	id := user.ID
	return &id
}
