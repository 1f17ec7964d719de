package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/TickerFox/internal/pkg/ticker"
	"github.com/ManuelReschke/TickerFox/internal/pkg/usercontext"
)

type fakeAlertService struct {
	err       error
	added     []string
	titles    []string
	removed   []uint
	toggled   []uint
	listUser  uint
	usageUser uint
}

func (f *fakeAlertService) AddAlert(_ context.Context, userID uint, marketTicker, titleHint string) (*models.UserAlert, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, marketTicker)
	f.titles = append(f.titles, titleHint)
	return &models.UserAlert{ID: 11, UserID: userID, MarketTicker: marketTicker, EventTicker: ticker.ExtractEventTicker(marketTicker), Status: models.AlertStatusActive}, nil
}

func (f *fakeAlertService) RemoveAlert(_ context.Context, _ uint, alertID uint) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, alertID)
	return nil
}

func (f *fakeAlertService) ToggleAlert(_ context.Context, userID, alertID uint) (*models.UserAlert, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.toggled = append(f.toggled, alertID)
	return &models.UserAlert{ID: alertID, UserID: userID, Status: models.AlertStatusPaused}, nil
}

func (f *fakeAlertService) ListAlerts(_ context.Context, userID uint) ([]alerts.AlertView, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.listUser = userID
	return []alerts.AlertView{{
		UserAlert:     models.UserAlert{ID: 2, UserID: userID, MarketTicker: "KXBTC-25DEC05-T100000", EventTicker: "KXBTC-25DEC05"},
		WebhookStatus: "ACTIVE",
		SearchQuery:   `"bitcoin"`,
	}}, nil
}

func (f *fakeAlertService) Usage(_ context.Context, userID uint) (alerts.Usage, error) {
	if f.err != nil {
		return alerts.Usage{}, f.err
	}
	f.usageUser = userID
	return alerts.Usage{AlertCount: 1, MaxAlerts: 20, Plan: "premium"}, nil
}

func newAlertApp(svc AlertService, userID uint) *fiber.App {
	app := fiber.New()
	if userID != 0 {
		app.Use(func(c *fiber.Ctx) error {
			usercontext.Set(c, usercontext.UserContext{UserID: userID, IsLoggedIn: true, Plan: "premium"})
			return c.Next()
		})
	}
	ac := NewAlertController(svc, nil)
	app.Get("/alerts", ac.HandleListAlerts)
	app.Post("/alerts", ac.HandleCreateAlert)
	app.Get("/alerts/usage", ac.HandleUsage)
	app.Delete("/alerts/:id", ac.HandleDeleteAlert)
	app.Post("/alerts/:id/toggle", ac.HandleToggleAlert)
	app.Get("/queries/preview", ac.HandleQueryPreview)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var req = httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAlertRoutesRequireUser(t *testing.T) {
	app := newAlertApp(&fakeAlertService{}, 0)

	for _, r := range []struct{ method, path string }{
		{"GET", "/alerts"},
		{"GET", "/alerts/usage"},
		{"DELETE", "/alerts/1"},
		{"POST", "/alerts/1/toggle"},
	} {
		status, body := doJSON(t, app, r.method, r.path, "")
		assert.Equal(t, fiber.StatusUnauthorized, status, r.path)
		assert.Equal(t, "unauthorized", body["error"])
	}
}

func TestHandleCreateAlert(t *testing.T) {
	svc := &fakeAlertService{}
	app := newAlertApp(svc, 5)

	status, body := doJSON(t, app, "POST", "/alerts", `{"marketTicker":" KXBTC-25DEC05-T100000 ","eventTitle":"Bitcoin Price"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, true, body["success"])
	alert := body["alert"].(map[string]any)
	assert.Equal(t, "KXBTC-25DEC05", alert["event_ticker"])
	assert.Equal(t, []string{"KXBTC-25DEC05-T100000"}, svc.added)
	assert.Equal(t, []string{"Bitcoin Price"}, svc.titles)

	status, body = doJSON(t, app, "POST", "/alerts", `{"eventTitle":"missing ticker"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Contains(t, body["message"], "MarketTicker")

	status, _ = doJSON(t, app, "POST", "/alerts", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAlertErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed ticker", &ticker.MalformedTickerError{Ticker: "BTC"}, fiber.StatusBadRequest, "invalid_ticker"},
		{"blocked category", &alerts.CategoryUnsupportedError{EventTicker: "KXNFL-25DEC05", Category: "Sports"}, fiber.StatusBadRequest, "category_unsupported"},
		{"quota", &alerts.AlertLimitError{Plan: "free", MaxAlerts: 1}, fiber.StatusForbidden, "alert_limit_reached"},
		{"duplicate", alerts.ErrDuplicateAlert, fiber.StatusConflict, "alert_exists"},
		{"not found", alerts.ErrAlertNotFound, fiber.StatusNotFound, "not_found"},
		{"other user", alerts.ErrForbidden, fiber.StatusForbidden, "forbidden"},
		{"expired toggle", alerts.ErrAlertNotToggleable, fiber.StatusConflict, "alert_not_toggleable"},
		{"hub down", &alerts.UpstreamError{Op: "subscribe", EventTicker: "KXBTC-25DEC05", Err: errors.New("status 500")}, fiber.StatusBadGateway, "try_again"},
		{"unexpected", errors.New("db closed"), fiber.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newAlertApp(&fakeAlertService{err: tt.err}, 5)

			status, body := doJSON(t, app, "POST", "/alerts", `{"marketTicker":"KXBTC-25DEC05-T100000"}`)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestHandleDeleteAndToggleAlert(t *testing.T) {
	svc := &fakeAlertService{}
	app := newAlertApp(svc, 5)

	status, body := doJSON(t, app, "DELETE", "/alerts/42", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, map[string]any{"success": true}, body)
	assert.Equal(t, []uint{42}, svc.removed)

	status, body = doJSON(t, app, "POST", "/alerts/43/toggle", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "PAUSED", body["alert"].(map[string]any)["status"])
	assert.Equal(t, []uint{43}, svc.toggled)

	status, body = doJSON(t, app, "DELETE", "/alerts/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestHandleListAlertsAndUsage(t *testing.T) {
	svc := &fakeAlertService{}
	app := newAlertApp(svc, 9)

	status, body := doJSON(t, app, "GET", "/alerts", "")
	assert.Equal(t, fiber.StatusOK, status)
	list := body["alerts"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "ACTIVE", first["webhook_status"])
	assert.Equal(t, `"bitcoin"`, first["search_query"])
	assert.EqualValues(t, 9, svc.listUser)

	status, body = doJSON(t, app, "GET", "/alerts/usage", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["alertCount"])
	assert.EqualValues(t, 20, body["maxAlerts"])
	assert.Equal(t, "premium", body["plan"])
	assert.EqualValues(t, 9, svc.usageUser)
}

func TestHandleQueryPreview(t *testing.T) {
	app := newAlertApp(&fakeAlertService{}, 0)

	status, body := doJSON(t, app, "GET", "/queries/preview?ticker=KXBTC-25DEC05-T100000", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "KXBTC-25DEC05", body["eventTicker"])
	assert.Equal(t, "crypto", body["category"])
	assert.Equal(t, "Bitcoin Price", body["eventTitle"])
	assert.NotEmpty(t, body["query"])
	assert.True(t, strings.HasPrefix(body["topic"].(string), "http://track.superfeedr.com/?query="))

	status, body = doJSON(t, app, "GET", "/queries/preview?ticker=BTC", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_ticker", body["error"])

	status, _ = doJSON(t, app, "GET", "/queries/preview", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}
