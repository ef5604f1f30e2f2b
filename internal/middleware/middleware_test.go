package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mroshb/rallypoint/internal/security"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_minimum_32_chars"

func newLimiter(t *testing.T, perAccount, perIP int) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(perAccount, perIP, time.Minute)
	t.Cleanup(rl.Stop)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_AccountWindow(t *testing.T) {
	rl, now := newLimiter(t, 2, 1)

	assert.True(t, rl.CheckAccountLimit(1))
	assert.True(t, rl.CheckAccountLimit(1))
	assert.False(t, rl.CheckAccountLimit(1))
	assert.True(t, rl.CheckAccountLimit(2), "accounts are limited separately")
	assert.Equal(t, 0, rl.GetAccountRemaining(1))

	*now = now.Add(time.Minute + time.Second)
	assert.Equal(t, 2, rl.GetAccountRemaining(1))
	assert.True(t, rl.CheckAccountLimit(1))

	assert.True(t, rl.CheckIPLimit("10.0.0.1"))
	assert.False(t, rl.CheckIPLimit("10.0.0.1"))
	rl.Reset()
	assert.True(t, rl.CheckIPLimit("10.0.0.1"))
}

func TestRateLimiter_ZeroDisables(t *testing.T) {
	rl, _ := newLimiter(t, 0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.CheckAccountLimit(1))
	}
}

func run(mw echo.MiddlewareFunc, req *http.Request) (echo.Context, error) {
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())
	err := mw(func(c echo.Context) error { return nil })(c)
	return c, err
}

func TestAuth(t *testing.T) {
	token, err := security.GenerateJWT(5, 9, testSecret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	c, err := run(Auth(testSecret), req)
	require.NoError(t, err)
	assert.Equal(t, uint(9), AccountID(c), "delegated requests act for the other account")

	for name, header := range map[string]string{
		"missing": "",
		"basic":   "Basic abc",
		"garbage": "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set(echo.HeaderAuthorization, header)
			}
			_, err := run(Auth(testSecret), req)
			assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newLimiter(t, 1, 1)
	mw := RateLimit(rl)

	_, err := run(mw, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	_, err = run(mw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, errors.HasCode(err, errors.ErrCodeRateLimitExceeded))
}
