package handlers

import (
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"auction-admin-system/middleware"
	"auction-admin-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApp wires all route files onto shared groups the way main does,
// with a counter in front of the user-context middleware.
func newTestApp(calls *int32) *fiber.App {
	app := fiber.New()
	secured := app.Group("/s", func(c *fiber.Ctx) error {
		atomic.AddInt32(calls, 1)
		return c.Next()
	}, middleware.UserContextMiddleware())
	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	SetupAuctionRoutes(app, secured, admin, services.NewAuctionService(nil), services.NewWagerService(nil, nil), services.NewPredictionService(nil))
	SetupTournamentRoutes(app, secured, admin, services.NewTournamentService(nil, nil, nil))
	SetupUserRoutes(secured, admin, services.NewUserService(nil, nil))
	return app
}

func TestSecuredGroupMiddlewareRunsOncePerRequest(t *testing.T) {
	var calls int32
	app := newTestApp(&calls)

	// Missing identity is rejected before any handler runs, after exactly
	// one pass through the secured group's middleware chain.
	resp, err := app.Test(httptest.NewRequest("GET", "/s/users/search", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAdminGroupRequiresRole(t *testing.T) {
	var calls int32
	app := newTestApp(&calls)

	req := httptest.NewRequest("POST", "/s/admin/tournaments/t1/settle", nil)
	req.Header.Set("X-User-ID", "user-a")
	req.Header.Set("X-User-Roles", "viewer")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
