package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/jwtutil"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

// Context keys set by Auth
const (
	UserIDKey = "user_id"
	EmailKey  = "email"
)

// Auth validates the bearer JWT and stores the user id in the context.
// Role and company are not taken from the token.
func Auth(tokens *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := tokens.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(EmailKey, claims.Email)

			// later log lines carry the user
			logger.Attach(c, log.With(zap.String("user_id", claims.UserID)))

			return next(c)
		}
	}
}

// UserID returns the authenticated user id, empty when Auth did not run
func UserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}
