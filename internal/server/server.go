package server

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"reelvault/internal/config"
	"reelvault/internal/database"
	"reelvault/internal/events"
	"reelvault/internal/handlers"
	"reelvault/internal/health"
	"reelvault/internal/library"
	"reelvault/internal/logging"
	"reelvault/internal/middleware"
	"reelvault/internal/services"
	"reelvault/internal/session"
	"reelvault/internal/utils"
)

// Options carries the server's collaborators
type Options struct {
	Config   *config.AppConfig
	DB       *gorm.DB
	Pinger   health.Pinger
	Pipeline *library.Pipeline
	// Optional collaborators
	Redis     *redis.Client
	Sessions  fiber.Storage
	Publisher events.Publisher
	Queue     handlers.ThumbnailQueue
	Seed      *database.SeedData
}

// Server is the HTTP front end of the library
type Server struct {
	app    *fiber.App
	cfg    *config.AppConfig
	logger *zerolog.Logger
}

// New builds the fiber app with every route registered
func New(opts Options) (*Server, error) {
	cfg := opts.Config

	resolver, err := middleware.NewClientIPResolver(cfg.Access.TrustedProxies, cfg.Access.ProxyHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid access config: %w", err)
	}

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.WithModule("server"),
		app: fiber.New(fiber.Config{
			AppName:      "ReelVault",
			ServerHeader: "ReelVault",
			ErrorHandler: utils.ErrorHandler,
			BodyLimit:    bodyLimit,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,

			DisableStartupMessage: cfg.Server.IsProduction(),
		}),
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	db := opts.DB
	users := services.NewRepository(db)
	catalog := services.NewCatalogService(db)
	requests := services.NewRequestService(db)
	access := services.NewAccessService(db)
	authService := services.NewAuthService(db, cfg.Security.SecretKey, cfg.JWT.AccessExpiry)
	sessions := session.NewStore(cfg.Session, opts.Sessions)
	auth := middleware.NewAuthMiddleware(authService, sessions)

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(helmet.New())
	s.app.Use(middleware.Metrics())
	s.app.Use(logging.GetGlobalLogger().FiberLoggerMiddleware())
	s.app.Use(middleware.AccessGate(middleware.AccessGateConfig{
		Resolver:    resolver,
		Access:      access,
		ExemptPaths: cfg.Access.ExemptPaths,
	}))
	s.app.Use(auth.Identity())

	pipelineCfg := library.PipelineConfig{
		VideoExtensions: cfg.Storage.VideoExtensions,
		ImageExtensions: cfg.Storage.ImageExtensions,
	}

	r := routes{
		auth:       auth,
		authH:      handlers.NewAuthHandler(authService, access, sessions),
		libraryH:   handlers.NewLibraryHandler(catalog, requests, opts.Pipeline.Storage(), publisher),
		accessH:    handlers.NewAccessHandler(access, resolver, publisher),
		adminH:     handlers.NewAdminHandler(users, catalog, requests, access, publisher),
		uploadH:    handlers.NewUploadHandler(opts.Pipeline, catalog, access, opts.Queue, pipelineCfg),
		systemH:    handlers.NewSystemHandler(db, opts.Seed, access),
		loginLimit: middleware.NewLoginRateLimiter(cfg.Access.LoginLimit, cfg.Access.LoginWindow),
		ipThrottle: middleware.NewIPThrottle(cfg.Access.RequestLimit, cfg.Access.RequestWindow),
	}

	var redisClient redis.UniversalClient
	if opts.Redis != nil {
		redisClient = opts.Redis
	}
	health.RegisterHealthRoutes(s.app, health.NewChecker(opts.Pinger, redisClient))
	s.app.Get("/metrics", handlers.NewMetricsHandler().Metrics())

	r.register(s.app)
	return s, nil
}

type routes struct {
	auth       *middleware.AuthMiddleware
	authH      *handlers.AuthHandler
	libraryH   *handlers.LibraryHandler
	accessH    *handlers.AccessHandler
	adminH     *handlers.AdminHandler
	uploadH    *handlers.UploadHandler
	systemH    *handlers.SystemHandler
	loginLimit fiber.Handler
	ipThrottle *middleware.IPThrottle
}

func (r routes) register(app *fiber.App) {
	requireAuth := r.auth.RequireAuth()
	adminOnly := r.auth.AdminOnly()

	// Auth routes
	app.Get("/login", r.authH.LoginInfo)
	app.Post("/login", r.loginLimit, r.authH.Login)
	app.Get("/register", r.authH.RegisterInfo)
	app.Post("/register", r.loginLimit, r.authH.Register)
	app.Post("/logout", r.authH.Logout)
	app.Post("/api/auth/token", r.loginLimit, r.authH.Token)

	// Access requests and diagnostics
	app.Get("/request-ip-access", r.accessH.RequestStatus)
	app.Post("/request-ip-access", middleware.Throttle(r.ipThrottle, "Too many access requests from your address"), r.accessH.RequestAccess)
	app.Get("/debug-ip", r.accessH.DebugIP)

	// Library
	app.Get("/", requireAuth, r.libraryH.Home)
	app.Get("/series/:name", requireAuth, r.libraryH.Series)
	app.Get("/watch/:id", requireAuth, r.libraryH.Watch)
	app.Get("/video/*", requireAuth, r.libraryH.Video)
	app.Get("/thumbnail/:filename", requireAuth, r.libraryH.Thumbnail)
	app.Get("/profile", requireAuth, r.libraryH.Profile)
	app.Get("/my-requests", requireAuth, r.libraryH.MyRequests)
	app.Post("/request-movie", requireAuth, r.libraryH.RequestMovie)

	// Admin-only routes outside /admin
	app.Get("/upload", adminOnly, r.uploadH.UploadInfo)
	app.Get("/api/user-count", adminOnly, r.adminH.UserCount)
	app.Post("/init-db", adminOnly, r.systemH.InitDB)

	admin := app.Group("/admin", adminOnly)
	admin.Get("/", r.adminH.Dashboard)

	admin.Get("/users", r.adminH.ListUsers)
	admin.Post("/users", r.adminH.CreateUser)
	admin.Put("/users/:id", r.adminH.UpdateUser)
	admin.Delete("/users/:id", r.adminH.DeleteUser)
	admin.Post("/users/:id/toggle-admin", r.adminH.ToggleAdmin)

	admin.Get("/movies", r.uploadH.ListMovies)
	admin.Delete("/movies/:id", r.uploadH.DeleteMovie)
	admin.Post("/movies/:id/thumbnail", r.uploadH.RegenerateThumbnail)
	admin.Post("/thumbnails/backfill", r.uploadH.BackfillThumbnails)
	admin.Get("/series", r.uploadH.ListSeries)
	admin.Get("/upload", r.uploadH.UploadInfo)
	admin.Post("/upload", r.uploadH.Upload)

	admin.Get("/movie-requests", r.adminH.ListMovieRequests)
	admin.Post("/movie-requests/:id/approve", r.adminH.ApproveMovieRequest)
	admin.Post("/movie-requests/:id/deny", r.adminH.DenyMovieRequest)
	admin.Post("/movie-requests/:id/mark-uploaded", r.adminH.MarkMovieRequestUploaded)

	admin.Get("/ip-whitelist", r.adminH.ListWhitelist)
	admin.Post("/ip-whitelist", r.adminH.AddWhitelistEntry)
	admin.Put("/ip-whitelist/:id", r.adminH.UpdateWhitelistEntry)
	admin.Delete("/ip-whitelist/:id", r.adminH.DeleteWhitelistEntry)
	admin.Post("/ip-whitelist/:id/toggle", r.adminH.ToggleWhitelistEntry)

	admin.Get("/ip-requests", r.adminH.ListIPRequests)
	admin.Post("/ip-requests/:id/approve", r.adminH.ApproveIPRequest)
	admin.Post("/ip-requests/:id/deny", r.adminH.DenyIPRequest)

	admin.Get("/logs", r.adminH.Logs)
}

// App exposes the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
