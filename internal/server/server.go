package server

import (
	"fmt"
	"log"
	"time"

	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/brothersgym/backoffice/internal/handler"
	"github.com/brothersgym/backoffice/internal/infrastructure/email"
	"github.com/brothersgym/backoffice/internal/middleware"
	"github.com/brothersgym/backoffice/internal/repository"
	"github.com/brothersgym/backoffice/internal/service"
	"github.com/brothersgym/backoffice/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
)

const idempotencyTTL = 24 * time.Hour

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	EmailSender email.Sender
	// Avatars stores member photos. Nil disables avatar uploads.
	Avatars domain.AvatarStore
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) (*fiber.App, error) {
	cfg := deps.Config

	cal, err := cfg.Membership.Converter()
	if err != nil {
		return nil, fmt.Errorf("membership calendar: %w", err)
	}

	// Initialize repositories
	memberRepo := repository.NewMongoMemberRepository(deps.MongoDB)
	planRepo := repository.NewMongoPlanRepository(deps.MongoDB)
	adminRepo := repository.NewMongoAdminRepository(deps.MongoDB)
	refreshRepo := repository.NewMongoRefreshTokenRepository(deps.MongoDB)
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)

	notifier, err := service.NewNotifier(deps.EmailSender, cal, service.NotifierConfig{
		GymName:    cfg.Email.FromName,
		ClientURL:  cfg.Server.ClientURL,
		AdminEmail: cfg.Email.NotifyAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("email templates: %w", err)
	}

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Printf("Warning: Failed to create membership metrics: %v", err)
	}

	// Initialize services
	engine := domain.NewMembershipEngine(cal)
	memberService := service.NewMemberService(memberRepo, planRepo, engine, deps.Avatars, cacheRepo, notifier, metrics)
	dashboardService := service.NewDashboardService(memberRepo, cacheRepo, cal.Location())
	planService := service.NewPlanService(planRepo)
	tokenService := service.NewTokenService(cfg.JWT, refreshRepo, adminRepo)
	authService := service.NewAuthService(adminRepo, tokenService, notifier, cfg.Admin.AllowedEmails, cfg.Server.ClientURL)

	// Initialize handlers
	memberHandler := handler.NewMemberHandler(memberService, dashboardService)
	planHandler := handler.NewPlanHandler(planService)
	authHandler := handler.NewAuthHandler(authService, cfg.JWT, cfg.Server.CookieSecure)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Brothers Gym Back Office API",
		BodyLimit:    int(cfg.Server.MaxUploadSizeMB * 1024 * 1024),
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.ClientURL,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		ExposeHeaders:    "X-Request-ID, X-Trace-ID, X-Idempotent-Replay",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(telemetry.RequestTracing(otel.GetTracerProvider(), metrics))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"service":  "brothers-gym-backoffice",
			"calendar": cfg.Membership.Calendar,
		})
	})

	v1 := app.Group("/api/v1")
	requireAdmin := middleware.RequireAdmin(authService)
	idempotent := middleware.IdempotencyMiddleware(deps.RedisClient, idempotencyTTL)

	// ===========================================
	// ADMINS - /api/v1/admins/*
	// ===========================================
	admins := v1.Group("/admins")
	// one shared budget for everything that takes a password or mails a link
	throttle := middleware.RateLimit(middleware.RateLimitConfig{Every: 12 * time.Second, Burst: 10})
	admins.Post("/signup", throttle, authHandler.Signup)
	admins.Post("/login", throttle, authHandler.Login)
	admins.Post("/logout", authHandler.Logout)
	admins.Post("/refresh", authHandler.Refresh)
	admins.Post("/forgot-password", throttle, authHandler.ForgotPassword)
	admins.Patch("/reset-password/:token", throttle, authHandler.ResetPassword)
	admins.Get("/confirm-email/:token", authHandler.ConfirmEmail)
	admins.Get("/me", requireAdmin, authHandler.Me)
	admins.Patch("/update-password", requireAdmin, authHandler.UpdatePassword)
	admins.Patch("/update-profile", requireAdmin, authHandler.UpdateProfile)

	// ===========================================
	// MEMBERS - /api/v1/members/*
	// ===========================================
	// Verification is the only public member endpoint, used at the door
	v1.Get("/verify/:code", memberHandler.VerifyMember)

	members := v1.Group("/members", requireAdmin)
	members.Get("/stats", memberHandler.GetStats)
	members.Post("/", idempotent, memberHandler.CreateMember)
	members.Get("/", memberHandler.ListMembers)
	members.Get("/:memberId", memberHandler.GetMember)
	members.Patch("/:memberId", memberHandler.UpdateMember)
	members.Delete("/:memberId", memberHandler.DeleteMember)
	members.Post("/:memberId/renew", idempotent, memberHandler.RenewMembership)
	members.Post("/:memberId/avatar", memberHandler.UploadAvatar)

	// ===========================================
	// PLANS - /api/v1/plans/*
	// ===========================================
	plans := v1.Group("/plans", requireAdmin)
	plans.Get("/", planHandler.ListPlans)
	plans.Post("/", planHandler.CreatePlan)
	plans.Put("/:planId", planHandler.UpdatePlan)

	return app, nil
}

// customErrorHandler handles errors that escape handlers, such as unknown routes
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Printf("[API] Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(code).JSON(fiber.Map{"error": "Something went wrong"})
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
