package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"opsdesk/internal/service"
)

// writeError renders err as {"error": kind, "message": msg}. Anything that is
// not a service.Error is logged and reported as internal_error.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		svcErr = service.ErrInternal
	}

	body := gin.H{
		"error":   string(svcErr.Kind),
		"message": svcErr.Message,
	}
	if svcErr.Kind == service.KindRateLimited {
		seconds := int((svcErr.RetryAfter + time.Second - 1) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		body["retryAfter"] = seconds
	}

	c.AbortWithStatusJSON(svcErr.Status, body)
}

func (h HandlerSet) badRequest(c *gin.Context, err error) {
	h.writeError(c, service.InvalidRequest(bindingMessage(err)))
}

func bindingMessage(err error) string {
	if err == nil {
		return "Invalid request body"
	}
	return "Invalid request body: " + err.Error()
}
