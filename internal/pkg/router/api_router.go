package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/TickerFox/app/controllers"
	"github.com/ManuelReschke/TickerFox/internal/pkg/middleware"
)

type ApiRouter struct {
	alerts  *controllers.AlertController
	users   middleware.APIKeyUsers
	storage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    h.storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/queries/preview", h.alerts.HandleQueryPreview)

	authed := v1.Group("", middleware.APIKeyAuthMiddleware(h.users))
	authed.Get("/alerts", h.alerts.HandleListAlerts)
	authed.Post("/alerts", h.alerts.HandleCreateAlert)
	authed.Get("/alerts/usage", h.alerts.HandleUsage)
	authed.Delete("/alerts/:id", h.alerts.HandleDeleteAlert)
	authed.Post("/alerts/:id/toggle", h.alerts.HandleToggleAlert)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{alerts: deps.Alerts, users: deps.Users, storage: deps.LimiterStorage}
}
