package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		op, _ := OperatorFromCtx(c)
		return c.String(http.StatusOK, op)
	}, mw...)
	return e
}

func do(e *echo.Echo, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	e := newEcho(APIKeyMiddleware(map[string]string{"ops": "k-ops", "ci": "k-ci"}))

	assert.Equal(t, http.StatusUnauthorized, do(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "wrong").Code)

	rec := do(e, "k-ci")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ci", rec.Body.String())
}

func TestAPIKeyMiddlewareWithoutKeysRejects(t *testing.T) {
	e := newEcho(APIKeyMiddleware(nil))
	assert.Equal(t, http.StatusUnauthorized, do(e, "anything").Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rds.Close() })

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := newEcho(
		APIKeyMiddleware(map[string]string{"ops": "k-ops", "ci": "k-ci"}),
		RateLimitMiddleware(RateLimitConfig{
			Redis:          rds,
			Limit:          2,
			Window:         time.Second,
			RetryAfterHint: true,
			Now:            func() time.Time { return now },
		}),
	)

	assert.Equal(t, http.StatusOK, do(e, "k-ops").Code)
	assert.Equal(t, http.StatusOK, do(e, "k-ops").Code)

	rec := do(e, "k-ops")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// windows are per operator
	assert.Equal(t, http.StatusOK, do(e, "k-ci").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do(e, "k-ops").Code)
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rds.Close() })
	mr.Close()

	e := newEcho(
		APIKeyMiddleware(map[string]string{"ops": "k-ops"}),
		RateLimitMiddleware(RateLimitConfig{Redis: rds, Limit: 1}),
	)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, "k-ops").Code)
	}
}
