package middleware

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/agency-crm/internal/auth"
	"github.com/jmehdipour/agency-crm/internal/logger"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	ctxSubject   = "subject"
	ctxBootstrap = "bootstrap"
)

// SubjectFromCtx extracts the token subject set by AuthMiddleware.
func SubjectFromCtx(c echo.Context) (string, bool) {
	v := c.Get(ctxSubject)
	s, ok := v.(string)
	return s, ok && s != ""
}

// IsBootstrap reports whether the request passed without a token through
// the bypass.
func IsBootstrap(c echo.Context) bool {
	b, _ := c.Get(ctxBootstrap).(bool)
	return b
}

// BypassFunc decides whether a request may pass without a token.
type BypassFunc func(c echo.Context) (bool, error)

// AuthMiddleware requires a valid `Authorization: Bearer <jwt>` header.
// On success it stores the token subject in context. bypass may be nil.
func AuthMiddleware(verifier *auth.Verifier, bypass BypassFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
			if header == "" && bypass != nil {
				ok, err := bypass(c)
				if err != nil {
					logger.Log.Error("auth bypass check failed", zap.Error(err))
					return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
				}
				if ok {
					c.Set(ctxBootstrap, true)
					return next(c)
				}
			}

			scheme, raw, found := strings.Cut(header, " ")
			raw = strings.TrimSpace(raw)
			if !found || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or invalid authorization header"})
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			}

			c.Set(ctxSubject, claims.Subject)
			return next(c)
		}
	}
}
