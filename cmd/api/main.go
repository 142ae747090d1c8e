package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/streetblock/internal/adapters/http"
	natsadapter "github.com/samirrijal/streetblock/internal/adapters/nats"
	"github.com/samirrijal/streetblock/internal/adapters/overpass"
	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/core/ports"
	"github.com/samirrijal/streetblock/internal/core/query"
	"github.com/samirrijal/streetblock/internal/core/usecases"
	"github.com/samirrijal/streetblock/internal/pkg/config"
	"github.com/samirrijal/streetblock/internal/pkg/logging"
	"github.com/samirrijal/streetblock/internal/pkg/metrics"
	"github.com/samirrijal/streetblock/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("streetblock-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	appLogger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Overpass pool
	endpoints := make([]domain.Endpoint, len(cfg.Overpass.Servers))
	for i, s := range cfg.Overpass.Servers {
		endpoints[i] = domain.Endpoint(s)
	}
	selector, err := query.NewEndpointSelector(endpoints)
	if err != nil {
		log.Fatalf("overpass: %v", err)
	}
	slog.Info("overpass pool", "servers", cfg.Overpass.Servers, "attempts", cfg.Overpass.Attempts)

	upstream := query.NewEndpointHealth()
	executor := query.NewExecutor(selector,
		query.WithLogger(appLogger),
		query.WithHooks(upstream.Hooks(query.Hooks{
			OnAttempt: func(a query.Attempt) {
				metrics.ObserveAttempt(a.Operation, a.Endpoint.String())
			},
			OnSuccess: func(a query.Attempt) {
				metrics.ObserveSuccess(a.Operation, a.Duration)
			},
			OnFailure: func(a query.Attempt, _ *domain.NetworkFailure) {
				metrics.ObserveFailure(a.Operation, a.Endpoint.String(), a.Duration)
			},
		})),
	)
	tiler := query.NewTiler(
		query.WithTilerLogger(appLogger),
		query.WithCellHook(func(int, int) { metrics.TileCells.Inc() }),
	)
	client := overpass.NewClient(
		overpass.WithTimeout(cfg.Overpass.Timeout()),
		overpass.WithUserAgent(cfg.Overpass.UserAgent),
	)

	// NATS (optional). Keep the interfaces nil when disabled.
	var (
		publisher ports.EventPublisher
		events    http.EventStatus
	)
	if cfg.NATS.Enabled {
		nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer nc.Close()
			publisher = nc
			events = nc
		}
	}

	// Use cases
	blockSvc := usecases.NewBlockService(executor, client, publisher,
		usecases.WithAttempts(cfg.Overpass.Attempts),
		usecases.WithBlockLogger(appLogger),
	)
	featureSvc := usecases.NewFeatureService(executor, tiler, client, usecases.FeatureSettings{
		Attempts:   cfg.Overpass.Attempts,
		CellSizeKm: cfg.Overpass.CellSizeKm,
		MaxCells:   cfg.Overpass.MaxCells,
		Sleep:      cfg.Overpass.Sleep(),
	}, appLogger)

	deps := &http.Dependencies{
		Blocks:         blockSvc,
		Features:       featureSvc,
		Events:         events,
		Upstream:       upstream,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // link requests carry full geometry
		AppName:      "StreetBlock API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Block resolutions may still be waiting on Overpass.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
