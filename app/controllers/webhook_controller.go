package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TickerFox/internal/pkg/dispatch"
)

// WebhookDispatcher handles one signed hub delivery.
type WebhookDispatcher interface {
	Handle(ctx context.Context, body []byte, signature string) dispatch.Report
}

// WebhookController receives Superfeedr push notifications.
type WebhookController struct {
	dispatcher WebhookDispatcher
	timeout    time.Duration
}

func NewWebhookController(dispatcher WebhookDispatcher, timeout time.Duration) *WebhookController {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WebhookController{dispatcher: dispatcher, timeout: timeout}
}

// HandleSuperfeedrVerification answers the hub's intent verification by
// echoing hub.challenge.
func (w *WebhookController) HandleSuperfeedrVerification(c *fiber.Ctx) error {
	if challenge := c.Query("hub.challenge"); challenge != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(fiber.StatusOK).SendString(challenge)
	}
	return c.JSON(fiber.Map{"status": "Superfeedr webhook endpoint"})
}

// HandleSuperfeedrCallback verifies and fans out one notification. The hub
// retries on anything but 2xx, so only signature failures are rejected.
func (w *WebhookController) HandleSuperfeedrCallback(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Hub-Signature"))

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	report := w.dispatcher.Handle(ctx, rawBody, signature)
	return c.Status(report.StatusCode()).JSON(report.Body())
}
