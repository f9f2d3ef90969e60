package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reelvault/internal/config"
	"reelvault/internal/events"
	"reelvault/internal/library"
	"reelvault/internal/media"
	"reelvault/internal/middleware"
	"reelvault/internal/models"
	"reelvault/internal/services"
	"reelvault/internal/session"
	"reelvault/internal/test"
)

const adminIP = "192.0.2.10"

type writeStrategy struct{}

func (writeStrategy) Name() string    { return media.StrategyPlaceholder }
func (writeStrategy) RealFrame() bool { return false }
func (writeStrategy) Generate(_ context.Context, _ media.ThumbnailRequest, outputPath string) error {
	return os.WriteFile(outputPath, []byte("jpeg"), 0o644)
}

type fakeQueue struct {
	regenerated []int64
	backfills   []int
}

func (q *fakeQueue) EnqueueRegenerate(_ context.Context, id int64) (string, error) {
	q.regenerated = append(q.regenerated, id)
	return fmt.Sprintf("regen-%d", id), nil
}

func (q *fakeQueue) EnqueueBackfill(_ context.Context, limit int) (string, error) {
	q.backfills = append(q.backfills, limit)
	return "backfill", nil
}

type adminFixture struct {
	app     *fiber.App
	db      *gorm.DB
	auth    *services.AuthService
	storage *library.Storage
	events  *events.Recorder
	admin   *models.User
	token   string
}

func newAdminFixture(t *testing.T, queue ThumbnailQueue) *adminFixture {
	t.Helper()

	db := test.GetTestDB(t)
	root := t.TempDir()
	storage, err := library.NewStorage(filepath.Join(root, "videos"), filepath.Join(root, "thumbnails"))
	require.NoError(t, err)

	recorder := &events.Recorder{}
	users := services.NewRepository(db)
	catalog := services.NewCatalogService(db)
	requests := services.NewRequestService(db)
	access := services.NewAccessService(db)
	auth := services.NewAuthService(db, "test-secret", time.Hour)
	gen := media.NewThumbnailGeneratorWithStrategies(storage.ThumbnailDir(), time.Second, writeStrategy{})
	cfg := library.PipelineConfig{VideoExtensions: []string{"mp4"}, ImageExtensions: []string{"png"}}
	pipeline := library.NewPipeline(storage, catalog, access, gen, recorder, cfg)

	resolver, err := middleware.NewClientIPResolver([]string{"0.0.0.0/32"}, []string{"X-Forwarded-For"})
	require.NoError(t, err)
	store := session.NewStore(config.SessionConfig{CookieName: "rv", Expiration: time.Hour}, nil)
	authMW := middleware.NewAuthMiddleware(auth, store)

	admin := NewAdminHandler(users, catalog, requests, access, recorder)
	upload := NewUploadHandler(pipeline, catalog, access, queue, cfg)
	system := NewSystemHandler(db, nil, access)

	app := fiber.New()
	// resolve the caller address the way the gate does, without enforcing the whitelist
	app.Use(middleware.AccessGate(middleware.AccessGateConfig{
		Resolver:    resolver,
		Access:      access,
		ExemptPaths: []string{"/"},
	}))
	app.Use(authMW.Identity())

	g := app.Group("/admin", authMW.AdminOnly())
	g.Get("/", admin.Dashboard)
	g.Get("/users", admin.ListUsers)
	g.Post("/users", admin.CreateUser)
	g.Put("/users/:id", admin.UpdateUser)
	g.Delete("/users/:id", admin.DeleteUser)
	g.Post("/users/:id/toggle-admin", admin.ToggleAdmin)
	g.Get("/movie-requests", admin.ListMovieRequests)
	g.Post("/movie-requests/:id/approve", admin.ApproveMovieRequest)
	g.Post("/movie-requests/:id/deny", admin.DenyMovieRequest)
	g.Post("/movie-requests/:id/mark-uploaded", admin.MarkMovieRequestUploaded)
	g.Get("/ip-whitelist", admin.ListWhitelist)
	g.Post("/ip-whitelist", admin.AddWhitelistEntry)
	g.Put("/ip-whitelist/:id", admin.UpdateWhitelistEntry)
	g.Delete("/ip-whitelist/:id", admin.DeleteWhitelistEntry)
	g.Post("/ip-whitelist/:id/toggle", admin.ToggleWhitelistEntry)
	g.Get("/ip-requests", admin.ListIPRequests)
	g.Post("/ip-requests/:id/approve", admin.ApproveIPRequest)
	g.Post("/ip-requests/:id/deny", admin.DenyIPRequest)
	g.Get("/logs", admin.Logs)
	g.Get("/movies", upload.ListMovies)
	g.Get("/series", upload.ListSeries)
	g.Post("/movies/:id/thumbnail", upload.RegenerateThumbnail)
	g.Post("/thumbnails/backfill", upload.BackfillThumbnails)
	g.Post("/init-db", system.InitDB)

	adminUser := test.CreateTestUser(t, db, "root", "secret1", true)
	token, err := auth.GenerateToken(adminUser)
	require.NoError(t, err)

	return &adminFixture{
		app:     app,
		db:      db,
		auth:    auth,
		storage: storage,
		events:  recorder,
		admin:   adminUser,
		token:   token,
	}
}

func (f *adminFixture) call(t *testing.T, method, target string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("X-Forwarded-For", adminIP)

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (f *adminFixture) lastAdminAction(t *testing.T) models.AdminAccessLog {
	t.Helper()
	var entry models.AdminAccessLog
	require.NoError(t, f.db.Order("id DESC").First(&entry).Error)
	return entry
}

func TestAdmin_UserManagement(t *testing.T) {
	f := newAdminFixture(t, nil)

	status, body := f.call(t, "POST", "/admin/users", map[string]interface{}{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusCreated, status)
	aliceID := int64(body["user"].(map[string]interface{})["id"].(float64))
	assert.Equal(t, "CREATE USER alice", f.lastAdminAction(t).Action)
	assert.Equal(t, adminIP, f.lastAdminAction(t).IPAddress)

	status, _ = f.call(t, "POST", "/admin/users", map[string]interface{}{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, f.lastAdminAction(t).Success)

	status, _ = f.call(t, "POST", "/admin/users", map[string]interface{}{"username": "al", "password": "secret1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = f.call(t, "PUT", fmt.Sprintf("/admin/users/%d", aliceID), map[string]interface{}{"username": "alicia", "is_admin": true})
	require.Equal(t, http.StatusOK, status)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "alicia", user["username"])
	assert.Equal(t, true, user["is_admin"])

	status, body = f.call(t, "POST", fmt.Sprintf("/admin/users/%d/toggle-admin", aliceID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["user"].(map[string]interface{})["is_admin"])

	status, body = f.call(t, "GET", "/admin/users?per_page=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, float64(2), body["pagination"].(map[string]interface{})["total"])

	status, _ = f.call(t, "DELETE", fmt.Sprintf("/admin/users/%d", aliceID), nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.call(t, "DELETE", fmt.Sprintf("/admin/users/%d", aliceID), nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.call(t, "DELETE", "/admin/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdmin_CannotChangeOwnAccount(t *testing.T) {
	f := newAdminFixture(t, nil)
	self := fmt.Sprintf("/admin/users/%d", f.admin.ID)

	status, _ := f.call(t, "DELETE", self, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.call(t, "POST", self+"/toggle-admin", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.call(t, "PUT", self, map[string]interface{}{"is_admin": false})
	assert.Equal(t, http.StatusForbidden, status)

	entry := f.lastAdminAction(t)
	assert.False(t, entry.Success)

	// a password change on one's own account is fine
	status, _ = f.call(t, "PUT", self, map[string]interface{}{"password": "newsecret"})
	assert.Equal(t, http.StatusOK, status)
}

func TestAdmin_Whitelist(t *testing.T) {
	f := newAdminFixture(t, nil)

	status, body := f.call(t, "POST", "/admin/ip-whitelist", map[string]string{"ip_address": "not-an-ip"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = f.call(t, "POST", "/admin/ip-whitelist", map[string]string{"ip_address": adminIP, "description": "office"})
	require.Equal(t, http.StatusCreated, status)
	ownID := int64(body["entry"].(map[string]interface{})["id"].(float64))

	status, _ = f.call(t, "POST", "/admin/ip-whitelist", map[string]string{"ip_address": adminIP})
	assert.Equal(t, http.StatusConflict, status)

	// the address the admin is connecting from is protected
	status, _ = f.call(t, "DELETE", fmt.Sprintf("/admin/ip-whitelist/%d", ownID), nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.call(t, "POST", fmt.Sprintf("/admin/ip-whitelist/%d/toggle", ownID), nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.call(t, "PUT", fmt.Sprintf("/admin/ip-whitelist/%d", ownID), map[string]interface{}{"is_active": false})
	assert.Equal(t, http.StatusForbidden, status)

	other := test.WhitelistIP(t, f.db, "198.51.100.20")
	status, body = f.call(t, "POST", fmt.Sprintf("/admin/ip-whitelist/%d/toggle", other.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["entry"].(map[string]interface{})["is_active"])

	status, _ = f.call(t, "DELETE", fmt.Sprintf("/admin/ip-whitelist/%d", other.ID), nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = f.call(t, "GET", "/admin/ip-whitelist", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, adminIP, body["current_ip"])
}

func TestAdmin_IPRequests(t *testing.T) {
	f := newAdminFixture(t, nil)
	access := services.NewAccessService(f.db)

	req, err := access.CreateIPRequest("198.51.100.30", "Sam", "family")
	require.NoError(t, err)
	other, err := access.CreateIPRequest("198.51.100.31", "Eve", "curious")
	require.NoError(t, err)

	status, body := f.call(t, "GET", "/admin/ip-requests?status=pending", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)
	status, _ = f.call(t, "GET", "/admin/ip-requests?status=bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = f.call(t, "POST", fmt.Sprintf("/admin/ip-requests/%d/approve", req.ID), nil)
	require.Equal(t, http.StatusOK, status)
	allowed, err := access.IsWhitelisted("198.51.100.30")
	require.NoError(t, err)
	assert.True(t, allowed)

	status, _ = f.call(t, "POST", fmt.Sprintf("/admin/ip-requests/%d/approve", req.ID), nil)
	assert.Equal(t, http.StatusConflict, status, "only pending requests can be decided")

	status, _ = f.call(t, "POST", fmt.Sprintf("/admin/ip-requests/%d/deny", other.ID), nil)
	require.Equal(t, http.StatusOK, status)
	allowed, err = access.IsWhitelisted("198.51.100.31")
	require.NoError(t, err)
	assert.False(t, allowed)

	status, _ = f.call(t, "POST", "/admin/ip-requests/999/deny", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdmin_MovieRequests(t *testing.T) {
	f := newAdminFixture(t, nil)
	alice := test.CreateTestUser(t, f.db, "alice", "secret1", false)
	requests := services.NewRequestService(f.db)

	first := &models.MovieRequest{UserID: alice.ID, Title: "Heat"}
	require.NoError(t, requests.CreateRequest(first))
	second := &models.MovieRequest{UserID: alice.ID, Title: "Dark", RequestType: models.RequestTypeSeries, SeriesName: "Dark"}
	require.NoError(t, requests.CreateRequest(second))

	status, body := f.call(t, "POST", fmt.Sprintf("/admin/movie-requests/%d/approve", first.ID), map[string]string{"admin_notes": "soon"})
	require.Equal(t, http.StatusOK, status)
	decided := body["request"].(map[string]interface{})
	assert.Equal(t, models.StatusApproved, decided["status"])
	assert.Equal(t, "soon", decided["admin_notes"])
	assert.Contains(t, f.events.Types(), events.MovieRequestStatusChanged)

	status, _ = f.call(t, "POST", fmt.Sprintf("/admin/movie-requests/%d/deny", first.ID), nil)
	assert.Equal(t, http.StatusConflict, status)

	// mark-uploaded works from any status
	status, body = f.call(t, "POST", fmt.Sprintf("/admin/movie-requests/%d/mark-uploaded", first.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusUploaded, body["request"].(map[string]interface{})["status"])

	status, _ = f.call(t, "POST", fmt.Sprintf("/admin/movie-requests/%d/deny", second.ID), nil)
	require.Equal(t, http.StatusOK, status)

	status, body = f.call(t, "GET", "/admin/movie-requests?status=denied", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	status, body = f.call(t, "GET", "/admin/movie-requests", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)

	assert.Equal(t, fmt.Sprintf("DENY MOVIE REQUEST %d", second.ID), f.lastAdminAction(t).Action)
}

func TestAdmin_DashboardAndLogs(t *testing.T) {
	f := newAdminFixture(t, nil)
	test.CreateTestMovie(t, f.db, &models.Movie{Title: "Heat"})
	test.CreateTestMovie(t, f.db, &models.Movie{Title: "Ep1", IsSeries: true, SeriesName: "Dark", SeasonNumber: 1, EpisodeNumber: 1})
	_, err := services.NewAccessService(f.db).CreateIPRequest("198.51.100.40", "Sam", "x")
	require.NoError(t, err)

	status, body := f.call(t, "GET", "/admin", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["movies"])
	assert.Equal(t, float64(1), body["episodes"])
	assert.Equal(t, float64(1), body["series"])
	assert.Equal(t, float64(1), body["pending_access_requests"])
	assert.Equal(t, float64(0), body["pending_movie_requests"])
	assert.Len(t, body["recent_uploads"], 2)

	status, body = f.call(t, "GET", "/admin/series", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	f.call(t, "POST", "/admin/users", map[string]interface{}{"username": "bob", "password": "secret1"})
	status, body = f.call(t, "GET", "/admin/logs", nil)
	require.Equal(t, http.StatusOK, status)
	adminLogs := body["admin_logs"].(map[string]interface{})
	assert.Len(t, adminLogs["data"], 1)
}

func TestAdmin_Thumbnails(t *testing.T) {
	f := newAdminFixture(t, nil)
	movie := test.CreateTestMovie(t, f.db, &models.Movie{Title: "Heat", VideoFile: "heat.mp4"})

	status, body := f.call(t, "POST", "/admin/thumbnails/backfill", nil)
	require.Equal(t, http.StatusOK, status)
	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(1), report["generated"])

	status, body = f.call(t, "POST", fmt.Sprintf("/admin/movies/%d/thumbnail", movie.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "auto_thumb_heat.jpg", body["thumbnail"].(map[string]interface{})["file"])

	status, _ = f.call(t, "POST", "/admin/movies/999/thumbnail", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdmin_ThumbnailsQueued(t *testing.T) {
	queue := &fakeQueue{}
	f := newAdminFixture(t, queue)
	movie := test.CreateTestMovie(t, f.db, &models.Movie{Title: "Heat", VideoFile: "heat.mp4"})

	status, body := f.call(t, "POST", fmt.Sprintf("/admin/movies/%d/thumbnail", movie.ID), nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, fmt.Sprintf("regen-%d", movie.ID), body["task_id"])

	status, _ = f.call(t, "POST", "/admin/thumbnails/backfill?limit=5", nil)
	require.Equal(t, http.StatusAccepted, status)

	assert.Equal(t, []int64{movie.ID}, queue.regenerated)
	assert.Equal(t, []int{5}, queue.backfills)

	stored, err := services.NewCatalogService(f.db).GetMovie(movie.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ThumbnailFile, "queued work does not run in the request")
}

func TestAdmin_InitDB(t *testing.T) {
	f := newAdminFixture(t, nil)

	status, body := f.call(t, "POST", "/admin/init-db", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])

	// the users table was not empty, so no seed admin was added
	assert.Equal(t, int64(1), test.CountRows(t, f.db, &models.User{}))
	assert.Equal(t, "INIT DB", f.lastAdminAction(t).Action)
}
