package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"chatter/internal/config"
	"chatter/internal/models"
	"chatter/internal/storage"
	"chatter/internal/testutil"
)

// newTestServer builds a full server against an in-memory database and
// miniredis, plus a Fiber app with all routes registered.
func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()

	db := testutil.OpenTestDB(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8284/media")
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret: "test-secret",
		Port:      "0",
		Env:       "test",
	}

	srv, err := NewServerWithDeps(cfg, db, rdb, store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.hub.Shutdown(context.Background()) })

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return models.RespondWithError(c, models.NewInternalError(err))
		},
	})
	srv.SetupRoutes(app)

	return srv, app
}

// doJSON performs a request with an optional bearer token and JSON body and
// decodes the JSON response.
func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

const testPassword = "Sup3r-secret-pw!"

// signupUser registers a user through the API and returns their token and ID.
func signupUser(t *testing.T, app *fiber.App, name, phone string) (token string, userID uint) {
	t.Helper()

	status, body := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"name":     name,
		"phone":    phone,
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, status, "signup response: %v", body)

	token, _ = body["token"].(string)
	require.NotEmpty(t, token)

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	id, ok := user["id"].(float64)
	require.True(t, ok)
	return token, uint(id)
}

func testPhone(n int) string {
	return fmt.Sprintf("+1555%07d", n)
}

// mustGetUser loads a user record through the service layer.
func mustGetUser(t *testing.T, srv *Server, id uint) *models.User {
	t.Helper()
	user, err := srv.userService.GetByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

// signTestToken forges a token with arbitrary claims for negative tests.
func signTestToken(t *testing.T, secret, issuer, audience, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iss": issuer,
		"aud": audience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"jti": "forged",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
