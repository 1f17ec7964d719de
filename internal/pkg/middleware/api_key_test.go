package middleware

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/usercontext"
)

type fakeUsers struct {
	byHash  map[string]*models.User
	err     error
	touched []uint
}

func (f *fakeUsers) GetByAPIKeyHash(hash string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byHash[hash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeUsers) TouchAPIKey(id uint) error {
	f.touched = append(f.touched, id)
	return nil
}

func newAPIKeyApp(users APIKeyUsers) *fiber.App {
	app := fiber.New()
	app.Get("/whoami", APIKeyAuthMiddleware(users), func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	return app
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	users := &fakeUsers{byHash: map[string]*models.User{
		models.HashAPIKey("tfx_active"):   {ID: 7, Name: "Alice", Plan: "Premium", Status: models.STATUS_ACTIVE},
		models.HashAPIKey("tfx_disabled"): {ID: 8, Name: "Bob", Status: models.STATUS_DISABLED},
	}}
	app := newAPIKeyApp(users)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantError  string
	}{
		{"missing key", "", "", fiber.StatusUnauthorized, "unauthorized"},
		{"unknown key", "X-API-Key", "tfx_unknown", fiber.StatusUnauthorized, "unauthorized"},
		{"inactive user", "X-API-Key", "tfx_disabled", fiber.StatusForbidden, "forbidden"},
		{"x-api-key header", "X-API-Key", "tfx_active", fiber.StatusOK, ""},
		{"bearer token", "Authorization", "Bearer tfx_active", fiber.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				return
			}
			assert.EqualValues(t, 7, body["user_id"])
			assert.Equal(t, "premium", body["plan"])
			assert.Equal(t, true, body["is_logged_in"])
		})
	}
	assert.Equal(t, []uint{7, 7}, users.touched)
}

func TestAPIKeyAuthMiddlewareLookupFailure(t *testing.T) {
	app := newAPIKeyApp(&fakeUsers{err: errors.New("db down")})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("X-API-Key", "tfx_active")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
