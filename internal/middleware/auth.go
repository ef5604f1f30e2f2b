package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mroshb/rallypoint/internal/security"
	"github.com/mroshb/rallypoint/pkg/errors"
)

const (
	AccountContextKey = "account_id"
	ClaimsContextKey  = "claims"
)

// Auth resolves the bearer token to the account the request acts for.
func Auth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
			}

			claims, err := security.ValidateJWT(strings.TrimSpace(token), secret)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
			}

			c.Set(ClaimsContextKey, claims)
			c.Set(AccountContextKey, claims.EffectiveAccountID())
			return next(c)
		}
	}
}

// AccountID returns the authenticated account, or 0 outside Auth.
func AccountID(c echo.Context) uint {
	id, _ := c.Get(AccountContextKey).(uint)
	return id
}

// RateLimit limits authenticated requests per account and anonymous ones per IP.
func RateLimit(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var allowed bool
			if id := AccountID(c); id != 0 {
				allowed = rl.CheckAccountLimit(id)
			} else {
				allowed = rl.CheckIPLimit(c.RealIP())
			}
			if !allowed {
				return errors.New(errors.ErrCodeRateLimitExceeded, "too many requests, please slow down")
			}
			return next(c)
		}
	}
}
