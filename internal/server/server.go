// Package server contains HTTP and WebSocket handlers for the hosted
// backend: auth, post CRUD, moderation transitions, image upload, and the
// change-feed WebSocket bridge.
package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oakvoices/internal/config"
	"oakvoices/internal/database"
	"oakvoices/internal/models"
	"oakvoices/internal/remote/authsvc"
	"oakvoices/internal/remote/blob"
	"oakvoices/internal/remote/feed"
	"oakvoices/internal/remote/gormstore"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	data  *gormstore.Store
	auth  *authsvc.Service
	feed  *feed.Redis
	blobs *blob.Disk
}

// NewServer creates a server instance, establishing its own database and
// Redis connections from cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
	}

	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	if err := gormstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("data migration failed: %w", err)
	}
	if err := authsvc.Migrate(db); err != nil {
		return nil, fmt.Errorf("auth migration failed: %w", err)
	}

	changeFeed := feed.New(rdb)
	prom := fiberprometheus.New("oakvoices-api")

	return &Server{
		config:         cfg,
		db:             db,
		redis:          rdb,
		promMiddleware: prom,
		data:           gormstore.New(db, changeFeed),
		auth:           authsvc.New(db, cfg.JWTSecret),
		feed:           changeFeed,
		blobs:          blob.New(cfg.StorageDir, cfg.PublicBaseURL),
	}, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for log correlation
	app.Use(requestid.New())

	// Per-request span, correlated with the request id
	app.Use(s.TracingMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", s.Signup)
	auth.Post("/login", s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Public post routes
	publicPosts := api.Group("/posts")
	publicPosts.Get("/", s.GetPosts)
	publicPosts.Get("/:id", s.GetPost)

	// Uploaded blobs
	app.Static("/storage", s.blobs.Root())

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)

	posts := protected.Group("/posts")
	posts.Get("/mine", s.GetMyPosts)
	posts.Post("/", s.CreatePost)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	protected.Post("/images", s.UploadImage)

	// Change-feed WebSocket bridge
	api.Get("/ws/feed", s.FeedUpgradeRequired(), s.FeedSocketHandler())

	// Moderation routes
	moderation := protected.Group("/moderation", s.AdminRequired())
	moderation.Get("/pending", s.GetPendingPosts)
	moderation.Post("/posts/:id/approve", s.ApprovePost)
	moderation.Post("/posts/:id/reject", s.RejectPost)
	moderation.Post("/hashtags/sweep", s.SweepHashtags)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// The change feed degrades to polling without Redis; still ready.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns middleware that resolves the bearer token to a
// session and stores the user id in locals.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		// WebSocket clients cannot set headers from the browser API.
		if token == "" && strings.HasPrefix(c.Path(), "/api/ws") {
			token = c.Query("token")
		}
		if token == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewAuthError("Authorization required"))
		}

		session, err := s.auth.Resolve(c.UserContext(), token)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals("userID", session.UserID)
		return c.Next()
	}
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(string)

		profile, err := s.data.GetProfile(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !profile.IsAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewAuthError("Admin access required"))
		}
		return c.Next()
	}
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return err
		}
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	parts := strings.Split(header, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// httpStatus maps an application error to its HTTP status.
func httpStatus(err error) int {
	if appErr, ok := err.(*models.AppError); ok {
		switch appErr.Code {
		case models.CodeValidation:
			return fiber.StatusBadRequest
		case models.CodeAuth:
			return fiber.StatusForbidden
		case models.CodeNotFound:
			return fiber.StatusNotFound
		}
	}
	return fiber.StatusInternalServerError
}
