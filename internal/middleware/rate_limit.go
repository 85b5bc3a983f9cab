package middleware

import (
	"net/http"
	"strconv"

	"passgate/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

type rateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// 429 を返す（Retry-After ヘッダと body の retry_after は同じ秒数）
func TooManyRequests(c echo.Context, d ratelimit.Decision, limiter *ratelimit.Limiter) error {
	secs := d.RetryAfterSeconds(limiter.Now())
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	return c.JSON(http.StatusTooManyRequests, rateLimitedResponse{Error: "rate limited", RetryAfter: secs})
}

// ログインユーザー単位のレート制限。AuthJWT の後ろに置く
func RateLimitByUser(limiter *ratelimit.Limiter, scope string, cfg ratelimit.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get(CtxUserIDKey).(int64)
			if !ok || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			key := scope + ":user:" + strconv.FormatInt(userID, 10)
			d := limiter.Check(c.Request().Context(), key, cfg)
			if !d.Allowed {
				return TooManyRequests(c, d, limiter)
			}
			return next(c)
		}
	}
}
