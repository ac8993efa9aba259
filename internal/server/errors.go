package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krisalay/clinic-swr-cache/engine"
	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
)

// ErrorResponse provides a consistent error response format
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Status int    `json:"status"`
}

func (s *Server) respondError(c *gin.Context, status int, message, code string) {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.String("error", message),
	}
	if status >= 500 {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Warn("request rejected", fields...)
	}
	c.JSON(status, ErrorResponse{Error: message, Code: code, Status: status})
}

func (s *Server) respondBadRequest(c *gin.Context, message string) {
	s.respondError(c, http.StatusBadRequest, message, "BAD_REQUEST")
}

// respondBackendError maps a failed read or mutation to a status:
//   - cooldown rejection: 503
//   - backend 4xx: passed through
//   - caller gone or timed out: 504
//   - anything else: 502
func (s *Server) respondBackendError(c *gin.Context, err error) {
	switch {
	case engine.IsUnavailable(err):
		s.respondError(c, http.StatusServiceUnavailable, err.Error(), "COOLING_DOWN")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.respondError(c, http.StatusGatewayTimeout, err.Error(), "TIMEOUT")
	default:
		var apiErr *adminapi.APIError
		if errors.As(err, &apiErr) && apiErr.IsClientError() {
			s.respondError(c, apiErr.StatusCode, apiErr.Message, "BACKEND_REJECTED")
			return
		}
		s.respondError(c, http.StatusBadGateway, err.Error(), "BACKEND_ERROR")
	}
}
