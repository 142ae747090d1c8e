package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/samirrijal/streetblock/internal/pkg/metrics"
)

// SetupRoutes registers all REST and GraphQL routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Block resolution fans out to public Overpass instances, so the budget
	// per IP is low.
	app.Use(limiter.New(limiter.Config{
		Max:        deps.rateLimit(),
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later", nil)
		},
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return p == "/v1/health" || p == "/v1/ready" || p == "/metrics"
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	budget := deps.requestTimeout()
	v1 := app.Group("/v1")
	v1.Post("/blocks", timeout.NewWithContext(ResolveBlockHandler(deps), budget))
	v1.Post("/blocks/link", timeout.NewWithContext(LinkBlockHandler(deps), budget))
	v1.Post("/features", timeout.NewWithContext(FetchFeaturesHandler(deps), budget))
	v1.Get("/servers", ListServersHandler(deps))

	// GraphQL
	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), budget))

	// API documentation (Swagger UI)
	SetupDocs(app)
}
