package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/TickerFox/internal/pkg/querygen"
	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
	"github.com/ManuelReschke/TickerFox/internal/pkg/usercontext"
)

const alertRequestTimeout = 30 * time.Second

// AlertService is the alert lifecycle as seen by the HTTP API.
type AlertService interface {
	AddAlert(ctx context.Context, userID uint, marketTicker, titleHint string) (*models.UserAlert, error)
	RemoveAlert(ctx context.Context, userID, alertID uint) error
	ToggleAlert(ctx context.Context, userID, alertID uint) (*models.UserAlert, error)
	ListAlerts(ctx context.Context, userID uint) ([]alerts.AlertView, error)
	Usage(ctx context.Context, userID uint) (alerts.Usage, error)
}

// CreateAlertRequest is the body of POST /api/v1/alerts.
type CreateAlertRequest struct {
	MarketTicker string `json:"marketTicker" validate:"required,min=3,max=100"`
	EventTitle   string `json:"eventTitle" validate:"omitempty,max=255"`
}

type AlertController struct {
	alerts   AlertService
	preview  *querygen.RuleGenerator
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAlertController(svc AlertService, logger *zap.Logger) *AlertController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertController{
		alerts:   svc,
		preview:  querygen.NewRuleGenerator(),
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleListAlerts returns the caller's alerts, newest first.
func (a *AlertController) HandleListAlerts(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), alertRequestTimeout)
	defer cancel()

	views, err := a.alerts.ListAlerts(ctx, userCtx.UserID)
	if err != nil {
		return a.alertError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": views})
}

// HandleCreateAlert subscribes the caller to a market.
func (a *AlertController) HandleCreateAlert(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	var req CreateAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Request body must be JSON"})
	}
	req.MarketTicker = strings.TrimSpace(req.MarketTicker)
	req.EventTitle = strings.TrimSpace(req.EventTitle)
	if err := a.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": validationMessage(err)})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), alertRequestTimeout)
	defer cancel()

	alert, err := a.alerts.AddAlert(ctx, userCtx.UserID, req.MarketTicker, req.EventTitle)
	if err != nil {
		return a.alertError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "alert": alert})
}

// HandleDeleteAlert removes one of the caller's alerts.
func (a *AlertController) HandleDeleteAlert(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}
	alertID, ok := alertIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid alert id"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), alertRequestTimeout)
	defer cancel()

	if err := a.alerts.RemoveAlert(ctx, userCtx.UserID, alertID); err != nil {
		return a.alertError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleToggleAlert pauses or resumes one of the caller's alerts.
func (a *AlertController) HandleToggleAlert(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}
	alertID, ok := alertIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid alert id"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), alertRequestTimeout)
	defer cancel()

	alert, err := a.alerts.ToggleAlert(ctx, userCtx.UserID, alertID)
	if err != nil {
		return a.alertError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "alert": alert})
}

// HandleUsage reports the caller's alert quota.
func (a *AlertController) HandleUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), alertRequestTimeout)
	defer cancel()

	usage, err := a.alerts.Usage(ctx, userCtx.UserID)
	if err != nil {
		return a.alertError(c, err)
	}
	return c.JSON(usage)
}

// HandleQueryPreview shows how a ticker is parsed and which rule-based
// query it would subscribe to. Nothing is persisted.
func (a *AlertController) HandleQueryPreview(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Query("ticker"))
	if raw == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "ticker query parameter is required"})
	}
	parsed, err := ticker.Parse(raw)
	if err != nil {
		return a.alertError(c, err)
	}

	res := a.preview.Generate(c.UserContext(), parsed.EventTicker, "")
	return c.JSON(fiber.Map{
		"marketTicker": parsed.MarketTicker,
		"eventTicker":  parsed.EventTicker,
		"series":       parsed.Series,
		"eventDate":    parsed.EventDate,
		"category":     res.Category,
		"entities":     parsed.Entities,
		"eventTitle":   ticker.FormatEventTitle(parsed.EventTicker),
		"query":        res.Query,
		"searchTerms":  res.SearchTerms,
		"topic":        querygen.BuildTopicURL(res.Query),
		"strategy":     res.Strategy,
	})
}

// alertError maps service errors onto the API error contract.
func (a *AlertController) alertError(c *fiber.Ctx, err error) error {
	var (
		malformed *ticker.MalformedTickerError
		blocked   *alerts.CategoryUnsupportedError
		limit     *alerts.AlertLimitError
		upstream  *alerts.UpstreamError
	)
	switch {
	case errors.As(err, &malformed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ticker", "message": err.Error()})
	case errors.As(err, &blocked):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "category_unsupported", "message": err.Error(), "category": blocked.Category})
	case errors.As(err, &limit):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "alert_limit_reached", "message": err.Error(), "maxAlerts": limit.MaxAlerts, "plan": limit.Plan})
	case errors.Is(err, alerts.ErrDuplicateAlert):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "alert_exists", "message": err.Error()})
	case errors.Is(err, alerts.ErrAlertNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, alerts.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": err.Error()})
	case errors.Is(err, alerts.ErrAlertNotToggleable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "alert_not_toggleable", "message": err.Error()})
	case errors.As(err, &upstream):
		a.logger.Warn("hub request failed", zap.String("event_ticker", upstream.EventTicker), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "try_again", "message": "Subscription service unavailable, please try again"})
	default:
		a.logger.Error("alert request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Request failed"})
	}
}
