package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/internal/auth"
	"github.com/satriahrh/kmfl/server/internal/metrics"
	"github.com/satriahrh/kmfl/server/internal/websocket"
	"github.com/satriahrh/kmfl/server/usecase"
)

const claimsKey = "claims"

type handler struct {
	hub    *websocket.Hub
	issuer *auth.TokenIssuer
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, issuer *auth.TokenIssuer, logger *zap.Logger) {
	h := &handler{hub: hub, issuer: issuer, logger: logger}

	e.Use(requestMetrics)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"service":  "kmfl-server",
			"sessions": len(hub.ActiveSessions()),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/sessions", h.createSession)

	sessions := v1.Group("/sessions/:id", h.requireSession)
	sessions.GET("", h.getSession)
	sessions.GET("/log", h.getLog)
	sessions.DELETE("/log", h.clearLog)
	sessions.PUT("/settings", h.updateSettings)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth)
}

func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)

		status := c.Response().Status
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
		}
		metrics.RequestCount.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
		return err
	}
}

func (h *handler) createSession(c echo.Context) error {
	sessionID := uuid.NewString()

	token, expiresAt, err := h.issuer.Issue(sessionID)
	if err != nil {
		h.logger.Error("Failed to generate session token",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}
	h.hub.IssueSession(sessionID, expiresAt)

	h.logger.Info("Session created", zap.String("sessionID", sessionID))

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// bearerToken extracts the token from the Authorization header
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requireSession only lets through tokens issued for the session in the path
func (h *handler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := h.issuer.Validate(token)
		if err != nil {
			h.logger.Warn("Request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		if claims.SessionID != c.Param("id") {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "session_mismatch",
				Message: "Token does not belong to this session",
			})
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

func (h *handler) connectedSession(c echo.Context) (*websocket.Client, error) {
	client, ok := h.hub.Session(c.Param("id"))
	if !ok {
		return nil, c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_connected",
			Message: "Session has no live connection",
		})
	}
	return client, nil
}

func (h *handler) getSession(c echo.Context) error {
	client, err := h.connectedSession(c)
	if client == nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(client.SessionID(), client.Controller().Snapshot()))
}

func (h *handler) getLog(c echo.Context) error {
	client, err := h.connectedSession(c)
	if client == nil {
		return err
	}

	entries := client.Controller().History()
	if entries == nil {
		entries = []entities.LogEntry{}
	}
	return c.JSON(http.StatusOK, LogResponse{
		SessionID: client.SessionID(),
		Entries:   entries,
	})
}

func (h *handler) clearLog(c echo.Context) error {
	client, err := h.connectedSession(c)
	if client == nil {
		return err
	}

	if err := client.Controller().ClearLog(); err != nil {
		return h.controllerError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) updateSettings(c echo.Context) error {
	client, err := h.connectedSession(c)
	if client == nil {
		return err
	}

	var req websocket.SettingsUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	ctrl := client.Controller()
	settings := req.Apply(ctrl.Snapshot().Settings)
	if err := ctrl.UpdateSettings(settings); err != nil {
		return h.controllerError(c, err)
	}
	return c.JSON(http.StatusOK, websocket.NewSettingsView(settings))
}

func (h *handler) controllerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidSettings):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_settings",
			Message: err.Error(),
		})
	case errors.Is(err, usecase.ErrControllerStopped):
		return c.JSON(http.StatusGone, ErrorResponse{
			Error:   "session_closed",
			Message: "Session has ended",
		})
	default:
		h.logger.Error("Session request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Session request failed",
		})
	}
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on websocket requests, so the token may also
// come from the token query parameter.
func (h *handler) websocketWithAuth(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := h.issuer.Validate(token)
	if err != nil {
		h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("sessionID", claims.SessionID))

	err = h.hub.HandleWebSocket(c, claims.SessionID)
	if errors.Is(err, websocket.ErrSessionConnected) {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "session_connected",
			Message: "Session already has a live connection",
		})
	}
	return err
}
