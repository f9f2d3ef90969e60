package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reelvault/internal/config"
	"reelvault/internal/models"
	"reelvault/internal/services"
	"reelvault/internal/session"
	"reelvault/internal/test"
)

type authFixture struct {
	app  *fiber.App
	db   *gorm.DB
	auth *services.AuthService
}

func newAuthApp(t *testing.T) *authFixture {
	t.Helper()

	db := test.GetTestDB(t)
	auth := services.NewAuthService(db, "test-secret", time.Hour)
	store := session.NewStore(config.SessionConfig{CookieName: "rv", Expiration: time.Hour}, nil)
	m := NewAuthMiddleware(auth, store)

	app := fiber.New()
	app.Use(m.Identity())
	app.Post("/login/:name", func(c *fiber.Ctx) error {
		var user models.User
		if err := db.Where("username = ?", c.Params("name")).First(&user).Error; err != nil {
			return c.SendStatus(fiber.StatusNotFound)
		}
		if err := session.SignIn(store, c, user.ID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/me", m.RequireAuth(), func(c *fiber.Ctx) error {
		user, _ := GetUserFromContext(c)
		return c.SendString(user.Username)
	})
	admin := app.Group("/admin", m.AdminOnly())
	admin.Get("/", func(c *fiber.Ctx) error { return c.SendString("dashboard") })

	return &authFixture{app: app, db: db, auth: auth}
}

func (f *authFixture) status(t *testing.T, path, token string, cookies ...*fiber.Cookie) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.Header.Add("Cookie", c.Name+"="+c.Value)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func (f *authFixture) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := f.auth.GenerateToken(user)
	require.NoError(t, err)
	return token
}

func TestAuth_Anonymous(t *testing.T) {
	f := newAuthApp(t)
	assert.Equal(t, fiber.StatusUnauthorized, f.status(t, "/me", ""))
	assert.Equal(t, fiber.StatusForbidden, f.status(t, "/admin", ""))
}

func TestAuth_BearerToken(t *testing.T) {
	f := newAuthApp(t)
	user := test.CreateTestUser(t, f.db, "viewer", "secret1", false)
	admin := test.CreateTestUser(t, f.db, "boss", "secret1", true)

	assert.Equal(t, fiber.StatusOK, f.status(t, "/me", f.token(t, user)))
	assert.Equal(t, fiber.StatusForbidden, f.status(t, "/admin", f.token(t, user)))
	assert.Equal(t, fiber.StatusOK, f.status(t, "/admin", f.token(t, admin)))
	assert.Equal(t, fiber.StatusUnauthorized, f.status(t, "/me", "not-a-token"))
}

func TestAuth_RoleIsReloadedOnEveryRequest(t *testing.T) {
	f := newAuthApp(t)
	admin := test.CreateTestUser(t, f.db, "boss", "secret1", true)
	token := f.token(t, admin)

	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", admin.ID).Update("is_admin", false).Error)
	assert.Equal(t, fiber.StatusForbidden, f.status(t, "/admin", token), "token claims do not outlive a demotion")

	require.NoError(t, f.db.Delete(&models.User{}, admin.ID).Error)
	assert.Equal(t, fiber.StatusUnauthorized, f.status(t, "/me", token), "deleted users are anonymous")
}

func cookieFrom(t *testing.T, f *authFixture, name string) *fiber.Cookie {
	t.Helper()
	resp, err := f.app.Test(httptest.NewRequest("POST", "/login/"+name, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)
	return &fiber.Cookie{Name: cookies[0].Name, Value: cookies[0].Value}
}

func TestAuth_Session(t *testing.T) {
	f := newAuthApp(t)
	test.CreateTestUser(t, f.db, "viewer", "secret1", false)
	test.CreateTestUser(t, f.db, "boss", "secret1", true)

	viewer := cookieFrom(t, f, "viewer")
	assert.Equal(t, fiber.StatusOK, f.status(t, "/me", "", viewer))
	assert.Equal(t, fiber.StatusForbidden, f.status(t, "/admin", "", viewer), "a valid session is not enough")

	boss := cookieFrom(t, f, "boss")
	assert.Equal(t, fiber.StatusOK, f.status(t, "/admin", "", boss))
}
