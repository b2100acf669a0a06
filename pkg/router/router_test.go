package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quacker/backend/pkg/config"
	"quacker/backend/pkg/di"
	"quacker/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, env map[string]string, metrics bool) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "chat.sqlite3"))
	t.Setenv("STORE_BACKEND", "sql")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("SESSION_SECRET", "router-test-secret")
	for k, v := range env {
		t.Setenv(k, v)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	container, err := di.New(ctx, config.Load(), logger.Discard(), di.Options{SkipMetrics: !metrics})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	r := New(ctx, container, "test")
	r.SetupRoutes()
	return r
}

func login(t *testing.T, r *Router, nickname string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"nickname":"`+nickname+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func send(r *Router, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestChatRoundTrip(t *testing.T) {
	r := newTestRouter(t, nil, false)

	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodGet, "/chat", "", nil).Code)

	alice := login(t, r, "alice")
	w := send(r, http.MethodGet, "/chat", "", alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = send(r, http.MethodPost, "/chat", `{"message":"hi"}`, alice)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	bob := login(t, r, "bob")
	w = send(r, http.MethodGet, "/chat?from=1&to=10&limit=10", "", bob)
	require.Equal(t, http.StatusOK, w.Code)

	var got []struct {
		ID        int64  `json:"id"`
		Message   string `json:"message"`
		CreatedBy string `json:"created_by"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "alice", got[0].CreatedBy)
	assert.Equal(t, "hi", got[0].Message)

	w = send(r, http.MethodGet, "/chat?from=2", "", bob)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestDefaultLimitComesFromConfig(t *testing.T) {
	r := newTestRouter(t, map[string]string{"FEED_DEFAULT_LIMIT": "4", "RATE_LIMIT_BURST": "100"}, false)
	alice := login(t, r, "alice")
	for i := 0; i < 6; i++ {
		require.Equal(t, http.StatusCreated, send(r, http.MethodPost, "/chat", `{"message":"m"}`, alice).Code)
	}

	var got []struct {
		ID int64 `json:"id"`
	}
	w := send(r, http.MethodGet, "/chat", "", alice)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.Equal(t, int64(6), got[0].ID)

	w = send(r, http.MethodGet, "/chat?limit=6", "", alice)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 6)
}

func TestPostIsRateLimited(t *testing.T) {
	r := newTestRouter(t, map[string]string{"RATE_LIMIT": "0.001", "RATE_LIMIT_BURST": "1"}, false)
	alice := login(t, r, "alice")

	assert.Equal(t, http.StatusCreated, send(r, http.MethodPost, "/chat", `{"message":"one"}`, alice).Code)
	w := send(r, http.MethodPost, "/chat", `{"message":"two"}`, alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/chat", "", alice).Code)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	r := newTestRouter(t, map[string]string{"MAX_BODY_SIZE": "32"}, false)
	alice := login(t, r, "al")

	w := send(r, http.MethodPost, "/chat", `{"message":"`+strings.Repeat("x", 100)+`"}`, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, nil, true)
	r.Container.Health.RunChecks(context.Background())

	w := send(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)

	w = send(r, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	alice := login(t, r, "alice")
	send(r, http.MethodGet, "/chat", "", alice)

	w = send(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	r := newTestRouter(t, nil, false)

	w := send(r, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
}

func TestOpenAPIValidation(t *testing.T) {
	schema, err := filepath.Abs(filepath.Join("..", "..", "api", "openapi.yaml"))
	require.NoError(t, err)
	r := newTestRouter(t, map[string]string{"OPENAPI_SCHEMA_PATH": schema}, false)

	w := send(r, http.MethodPost, "/login", `{"name":"alice"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")

	alice := login(t, r, "alice")
	w = send(r, http.MethodPost, "/chat", `{"message":5}`, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodGet, "/chat?from=abc", "", alice)
	assert.Equal(t, http.StatusOK, w.Code)
}

const ticketSchema = `openapi: 3.0.3
info:
  title: tickets
  version: "1"
paths:
  /session:
    get:
      parameters:
        - name: ticket
          in: query
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`

func TestReloadSchema(t *testing.T) {
	original, err := os.ReadFile(filepath.Join("..", "..", "api", "openapi.yaml"))
	require.NoError(t, err)
	schema := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(schema, original, 0o600))

	r := newTestRouter(t, map[string]string{"OPENAPI_SCHEMA_PATH": schema}, false)
	alice := login(t, r, "alice")
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/session", "", alice).Code)

	require.NoError(t, os.WriteFile(schema, []byte("openapi: [broken"), 0o600))
	assert.Error(t, r.ReloadSchema())
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/session", "", alice).Code)

	require.NoError(t, os.WriteFile(schema, []byte(ticketSchema), 0o600))
	require.NoError(t, r.ReloadSchema())
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodGet, "/session", "", alice).Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/session?ticket=1", "", alice).Code)
}

func TestReloadSchemaWithoutValidation(t *testing.T) {
	r := newTestRouter(t, nil, false)
	assert.Error(t, r.ReloadSchema())
}
