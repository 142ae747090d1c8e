package http

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware logs each request through the request-scoped logger,
// so the line carries the request ID. Status 5xx or a handler error log at
// error level, 4xx at warn.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.String("route", c.Route().Path),
			slog.Int("status", status),
			slog.String("latency", time.Since(start).String()),
			slog.Int("bytes_in", len(c.Body())),
			slog.Int("bytes_out", len(c.Response().Body())),
		}

		level := slog.LevelInfo
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			level = slog.LevelError
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		ctx := c.UserContext()
		LoggerFromCtx(ctx).LogAttrs(ctx, level, fmt.Sprintf("%s %s", method, path), attrs...)

		return err
	}
}
