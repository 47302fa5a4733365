package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// statusFor maps a service error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var ce *capabilities.CapabilityError
	switch {
	case errors.Is(err, domain.ErrProjectNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusConflict, "precondition_failed"
	case errors.Is(err, domain.ErrProjectBusy):
		return http.StatusLocked, "project_busy"
	case errors.Is(err, domain.ErrRecommendationCount):
		return http.StatusBadGateway, "recommendation_count"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &ce):
		if ce.Kind == capabilities.KindRateLimit {
			return http.StatusTooManyRequests, "rate_limited"
		}
		return http.StatusBadGateway, "capability_" + string(ce.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := gin.H{"ok": false, "error": err.Error(), "code": code}

	var pe *domain.PreconditionError
	if errors.As(err, &pe) {
		body["status"] = pe.Status
		if len(pe.Missing) > 0 {
			body["missing"] = pe.Missing
		}
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": msg, "code": "invalid_input"})
}
