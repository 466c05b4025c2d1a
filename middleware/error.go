package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/signal-engine/errs"
	"github.com/seo-optimizer/signal-engine/logging"
)

// ErrorHandler recovers from panics and maps known error kinds attached
// to the context onto HTTP statuses.
func ErrorHandler(log logging.Logger) gin.HandlerFunc {
	if log == nil {
		log = logging.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "An unexpected error occurred",
				})
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		c.JSON(StatusFor(err), gin.H{"error": err.Error()})
	}
}

// StatusFor maps engine error kinds onto HTTP statuses.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrAuthError):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
