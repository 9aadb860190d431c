package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"triage_worker/adapter/in/http"
	"triage_worker/config"
	"triage_worker/core/service/classification"
	"triage_worker/infra/middleware"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/ratelimit"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}
	return NewApp(deps), cleanup, nil
}

// NewApp builds the fiber app over already wired dependencies.
func NewApp(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json for request and response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          cfg.BodyLimitBytes,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(cors.Config{
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	// Health check (no auth required)
	http.NewHealthHandler(deps.HealthChecks()).Register(app)

	if cfg.IsDevelopment() && cfg.JWTSecret != "" {
		RegisterDevRoutes(app, cfg.JWTSecret)
		logger.Info("Development token route enabled")
	}

	api := app.Group("/v1")
	api.Use(middleware.RequireJSON())
	if cfg.JWTSecret != "" {
		api.Use(middleware.JWTAuth(cfg.JWTSecret))
	} else {
		logger.Warn("JWT_SECRET not set, /v1 is unauthenticated")
	}
	if deps.Redis != nil && cfg.RateLimitPerSecond > 0 {
		limiter := ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		api.Use("/triage", middleware.RateLimit(limiter, "triage"))
	}

	svc := deps.TriageService
	http.NewTriageHandler(deps.Normalizer, deps.Resolver, svc, svc).Register(api)
	http.NewLabelHandler(svc, svc).Register(api)
	http.NewCategoryHandler(classification.PriorityOrder()).Register(api)
	http.NewMetricsHandler(deps.Metrics, deps.StatsSources()).Register(api)

	return app
}
