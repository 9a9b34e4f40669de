package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/service"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/jwtutil"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

// AuthHandler exchanges credentials for bearer tokens
type AuthHandler struct {
	svc    *service.Service
	tokens *jwtutil.JWTUtil
}

// NewAuth returns an AuthHandler signing tokens with tokens
func NewAuth(svc *service.Service, tokens *jwtutil.JWTUtil) *AuthHandler {
	return &AuthHandler{svc: svc, tokens: tokens}
}

// Register mounts the public auth routes
func (h *AuthHandler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/login", h.Login, mw...)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		prometheus.RecordLogin("failure")
		prometheus.RecordAuthError("invalid_request")
		return badRequest(c, "invalid request")
	}

	ctx := logger.WithContext(c.Request().Context(), log)
	user, reason, err := h.svc.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		prometheus.RecordLogin("failure")
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			prometheus.RecordAuthError(reason)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
		case errors.Is(err, service.ErrInvalidCredentials):
			prometheus.RecordAuthError(reason)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		log.Error("Login failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	token, err := h.tokens.GenerateToken(email, user.ID)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordLogin("failure")
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.RecordLogin("success")
	log.Info("User logged in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user":  user,
	})
}
