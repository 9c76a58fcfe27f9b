package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const ctxOperator = "operator"

// OperatorFromCtx extracts the authenticated operator set by APIKeyMiddleware.
func OperatorFromCtx(c echo.Context) (string, bool) {
	op, ok := c.Get(ctxOperator).(string)
	return op, ok && op != ""
}

// APIKeyMiddleware authenticates requests using the X-API-Key header against
// the configured operator keys (operator name -> key). With no keys
// configured every request is rejected.
func APIKeyMiddleware(keys map[string]string) echo.MiddlewareFunc {
	type entry struct{ operator, key string }
	entries := make([]entry, 0, len(keys))
	for op, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			entries = append(entries, entry{operator: op, key: k})
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			for _, e := range entries {
				if subtle.ConstantTimeCompare([]byte(e.key), []byte(key)) == 1 {
					c.Set(ctxOperator, e.operator)
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		}
	}
}
