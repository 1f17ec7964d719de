package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TickerFox/app/controllers"
)

type WebhookRouter struct {
	webhooks *controllers.WebhookController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Get("/api/webhooks/superfeedr", h.webhooks.HandleSuperfeedrVerification)
	app.Post("/api/webhooks/superfeedr", h.webhooks.HandleSuperfeedrCallback)
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{webhooks: deps.Webhooks}
}
