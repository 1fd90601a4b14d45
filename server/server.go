// Package server contains the HTTP and WebSocket handlers for the API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"nodetalk/auth"
	"nodetalk/cache"
	"nodetalk/config"
	"nodetalk/database"
	"nodetalk/middleware"
	"nodetalk/models"
	"nodetalk/notifications"
	"nodetalk/repository"
	"nodetalk/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config      *config.Config
	db          *gorm.DB
	redis       *redis.Client
	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	chatRepo    repository.ChatRepository
	followRepo  repository.FollowRepository
	followSvc   *service.FollowService
	postAccess  *service.PostAccessService
	chatSvc     *service.ChatService
	avatarSvc   *service.AvatarService
	github      *auth.GitHubProvider
	notifier    *notifications.Notifier
	hub         *notifications.Hub
	app         *fiber.App
}

// NewServer creates a server instance, connecting to Postgres and Redis.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := cache.NewClient(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, redisClient), nil
}

// NewServerWithDeps wires a server over existing connections. Tests use it
// with an in-memory SQLite database and an optional miniredis client.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	chatRepo := repository.NewChatRepository(db)
	followRepo := repository.NewFollowRepository(db)

	hub := notifications.NewHub()
	var notifier *notifications.Notifier
	if redisClient != nil {
		notifier = notifications.NewNotifier(redisClient)
	}

	followSvc := service.NewFollowService(userRepo, followRepo)

	return &Server{
		config:      cfg,
		db:          db,
		redis:       redisClient,
		userRepo:    userRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		chatRepo:    chatRepo,
		followRepo:  followRepo,
		followSvc:   followSvc,
		postAccess:  service.NewPostAccessService(postRepo, followSvc),
		chatSvc:     service.NewChatService(chatRepo, userRepo, hub, notifier),
		avatarSvc:   service.NewAvatarService(cfg.AvatarUploadDir),
		github:      auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL),
		notifier:    notifier,
		hub:         hub,
	}
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(middleware.Tracing())
	app.Use(middleware.StructuredLogger())

	prometheus := fiberprometheus.New("nodetalk")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)

	// Processed avatars are written into the configured upload dir and
	// served from the fixed public prefix their stored URLs point at.
	app.Static(service.AvatarURLPrefix, s.config.AvatarUploadDir)

	// Auth routes
	authGroup := app.Group("/auth")
	authGroup.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	authGroup.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/guest", s.GuestLogin)
	authGroup.Get("/github", s.GitHubLogin)
	authGroup.Get("/github/callback", s.GitHubCallback)
	authGroup.Post("/logout", s.AuthRequired(), s.Logout)
	authGroup.Get("/me", s.AuthRequired(), s.Me)

	// Protected routes
	protected := app.Group("", s.AuthRequired())

	// User routes; specific paths before the dynamic /:username
	users := protected.Group("/users")
	users.Get("/", s.DiscoverUsers)
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Post("/me/avatar", s.UploadAvatar)
	users.Get("/requests", s.ListFollowRequests)
	users.Post("/requests/:id/accept", s.AcceptFollowRequest)
	users.Post("/requests/:id/reject", s.RejectFollowRequest)
	users.Post("/:id/follow", middleware.RateLimit(s.redis, 30, 5*time.Minute, "follow"), s.ToggleFollow)
	users.Get("/:username", s.GetUserProfile)

	// Post routes
	posts := protected.Group("/posts")
	posts.Get("/", s.GetFeed)
	posts.Post("/", middleware.RateLimit(s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	posts.Get("/:id", s.GetPost)
	posts.Post("/:id/delete", s.DeletePost)
	posts.Post("/:id/like", s.ToggleLike)
	posts.Post("/:id/comments", middleware.RateLimit(s.redis, 15, time.Minute, "create_comment"), s.CreateComment)

	// Chat routes
	chat := protected.Group("/chat")
	chat.Get("/", s.GetInbox)
	chat.Post("/", s.StartConversation)
	chat.Get("/:id", s.GetConversation)
	chat.Post("/:id/messages", middleware.RateLimit(s.redis, 15, time.Minute, "send_chat"), s.SendMessage)

	// Websocket endpoint; identity comes from the token query parameter
	app.Get("/ws", s.WebsocketHandler())
}

// HealthCheck handles health check requests
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := database.Ping(ctx, sqlDB); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "NodeTalk",
		"status":  "healthy",
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware. The token comes from
// the Authorization header or, for websocket upgrades, the token query
// parameter.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		userID, claims, err := s.parseToken(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		if s.isRevoked(c.Context(), claims) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		c.Locals("userID", userID)
		c.Locals("claims", claims)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// parseToken validates the signature, issuer and audience and returns the
// subject user ID with the claims.
func (s *Server) parseToken(tokenString string) (uint, jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, nil, fmt.Errorf("invalid token claims")
	}
	if issuer, ok := claims["iss"].(string); !ok || issuer != "nodetalk-api" {
		return 0, nil, fmt.Errorf("invalid token issuer")
	}
	if audience, ok := claims["aud"].(string); !ok || audience != "nodetalk-client" {
		return 0, nil, fmt.Errorf("invalid token audience")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, nil, fmt.Errorf("invalid subject claim")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid user ID in token")
	}
	return uint(userID), claims, nil
}

// isRevoked checks the Redis revocation list for the token's jti. Without
// Redis, logout cannot invalidate tokens before expiry.
func (s *Server) isRevoked(ctx context.Context, claims jwt.MapClaims) bool {
	if s.redis == nil {
		return false
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return false
	}
	n, err := s.redis.Exists(ctx, "revoked:jti:"+jti).Result()
	return err == nil && n > 0
}

// generateToken creates a JWT token for the given user ID
func (s *Server) generateToken(userID uint) (string, error) {
	if s.config.JWTSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": "nodetalk-api",
		"aud": "nodetalk-client",
		"exp": now.Add(time.Hour * 24 * 7).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// Start starts the server
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName:   "NodeTalk API",
		BodyLimit: 10 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app

	// Bridge cross-instance events from Redis into the local hub
	if s.notifier != nil {
		go func() {
			if err := s.hub.StartWiring(context.Background(), s.notifier); err != nil {
				slog.Error("failed to start hub wiring", "error", err)
			}
		}()
	}

	slog.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down http server", "error", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			slog.Error("error shutting down hub", "error", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			slog.Error("error closing redis", "error", rerr)
		}
	}

	slog.Info("server shutdown complete")
	return nil
}
