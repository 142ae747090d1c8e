package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		})
	}
}

// ReadyHandler checks the Overpass pool and the event broker. Interpreters
// are not contacted here; the pool is not ready once the latest attempt on
// every endpoint failed. Endpoints never tried count as healthy.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		checks := make(map[string]string)
		allOK := true

		// Overpass pool
		if deps.Upstream != nil {
			servers := deps.Blocks.Servers()
			var failing int
			for _, ep := range servers {
				if err := deps.Upstream.LastFailure(ep); err != nil {
					checks["overpass "+ep.String()] = err.Error()
					failing++
				}
			}
			if failing > 0 && failing == len(servers) {
				checks["overpass"] = fmt.Sprintf("all %d servers failing", failing)
				allOK = false
			} else {
				checks["overpass"] = fmt.Sprintf("%d of %d servers failing", failing, len(servers))
			}
		} else {
			checks["overpass"] = "not tracked"
		}

		// NATS
		if deps.Events != nil {
			if deps.Events.Connected() {
				checks["nats"] = "ok"
			} else {
				checks["nats"] = "disconnected"
				allOK = false
			}
		} else {
			checks["nats"] = "not configured"
		}

		status := "ready"
		code := fiber.StatusOK
		if !allOK {
			status = "not ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
