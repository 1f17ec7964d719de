package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
)

// OpsRouter serves health, Prometheus metrics and the fiber monitor.
type OpsRouter struct {
	deps Dependencies
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.deps.MetricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.deps.MetricsHandler))
	}

	// monitor stays off without a password
	if h.deps.MonitorPass != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{
				h.deps.MonitorUser: h.deps.MonitorPass,
			},
		}), monitor.New(monitor.Config{Title: "TickerFox Monitor"}))
	}
}

func NewOpsRouter(deps Dependencies) *OpsRouter {
	return &OpsRouter{deps: deps}
}
