package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"id", "id"},
		{"userId", "user id"},
		{"requestId", "request id"},
		{"conversationId", "conversation id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, humanizeParam(tt.in))
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()

	var gotLimit int
	var gotBefore uint64
	app.Get("/page", func(c *fiber.Ctx) error {
		gotLimit, gotBefore = parsePagination(c)
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		query      string
		wantLimit  int
		wantBefore uint64
	}{
		{"", defaultPageLimit, 0},
		{"?limit=10", 10, 0},
		{"?limit=0", defaultPageLimit, 0},
		{"?limit=-5", defaultPageLimit, 0},
		{"?limit=9999", maxPageLimit, 0},
		{"?before=42", defaultPageLimit, 42},
		{"?limit=5&before=17", 5, 17},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/page"+tt.query, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, tt.wantLimit, gotLimit, "query %q", tt.query)
		assert.Equal(t, tt.wantBefore, gotBefore, "query %q", tt.query)
	}
}

func TestParseIDRejectsBadInput(t *testing.T) {
	app := fiber.New()
	app.Get("/things/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	for _, path := range []string{"/things/abc", "/things/0", "/things/-3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "path %s", path)
	}

	req := httptest.NewRequest(http.MethodGet, "/things/7", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
