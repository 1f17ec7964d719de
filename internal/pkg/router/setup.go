package router

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TickerFox/app/controllers"
	"github.com/ManuelReschke/TickerFox/internal/pkg/middleware"
)

// Router installs one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and stores the routers are built from.
type Dependencies struct {
	Webhooks *controllers.WebhookController
	Alerts   *controllers.AlertController
	Users    middleware.APIKeyUsers

	// LimiterStorage backs the /api rate limiter. nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// MetricsHandler serves the Prometheus registry.
	MetricsHandler http.Handler
	MonitorUser    string
	MonitorPass    string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Webhook routes are registered before the /api group so the hub is not
	// subject to the API rate limiter.
	setup(app, NewWebhookRouter(deps), NewApiRouter(deps), NewOpsRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
