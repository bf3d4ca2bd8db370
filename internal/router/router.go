package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chldlstlr7-art/AITA-sub000/internal/config"
	"github.com/chldlstlr7-art/AITA-sub000/internal/handler"
	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
	"github.com/chldlstlr7-art/AITA-sub000/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ReportHandler   *handler.ReportHandler
	GradingHandler  *handler.GradingHandler
	CourseHandler   *handler.CourseHandler
	ActivityHandler *handler.ActivityHandler
	HealthProbes    map[string]handler.HealthProbe
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group(middleware.APIPrefix, func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	protected := api.Group("", jwtMiddleware)

	if deps.ReportHandler != nil {
		deps.ReportHandler.Register(protected)
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(protected)
	}
	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(protected)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(protected)
	}
}

// AnalyzeLimiter caps essay submissions per user.
func AnalyzeLimiter(cfg config.Config) fiber.Handler {
	return middleware.RateLimit("analyze", cfg.RateLimit.AnalyzePerMinute, time.Minute)
}

// QuestionLimiter caps question issuing and deep-dive requests per user.
func QuestionLimiter(cfg config.Config) fiber.Handler {
	return middleware.RateLimit("question", cfg.RateLimit.QuestionPerMinute, time.Minute)
}
