package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueWSTicket(t *testing.T) {
	srv, app := newTestServer(t)
	token, userID := signupUser(t, app, "Dana", testPhone(20))

	status, body := doJSON(t, app, http.MethodPost, "/api/ws/ticket", token, nil)
	require.Equal(t, http.StatusOK, status)
	ticket, _ := body["ticket"].(string)
	require.NotEmpty(t, ticket)

	// The ticket resolves to the issuing user in Redis.
	val, err := srv.redis.Get(context.Background(), "ws_ticket:"+ticket).Result()
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(uint64(userID), 10), val)

	// Tickets require authentication to issue.
	status, _ = doJSON(t, app, http.MethodPost, "/api/ws/ticket", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthRequired_WSTicketIsSingleUse(t *testing.T) {
	srv, app := newTestServer(t)
	token, _ := signupUser(t, app, "Erin", testPhone(21))

	// SetupRoutes already mounts AuthRequired on the /api/ws group, so a
	// plain route under that prefix runs the same middleware as the
	// websocket upgrade. It must not carry its own AuthRequired: a second
	// run would consume the ticket before the first one answers.
	app.Get("/api/ws/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	status, body := doJSON(t, app, http.MethodPost, "/api/ws/ticket", token, nil)
	require.Equal(t, http.StatusOK, status)
	ticket := body["ticket"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/ws/whoami?ticket="+ticket, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Consumed from Redis.
	exists, err := srv.redis.Exists(context.Background(), "ws_ticket:"+ticket).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	// A second use is rejected on websocket paths.
	req = httptest.NewRequest(http.MethodGet, "/api/ws/whoami?ticket="+ticket, nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
