package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/signal-engine/logging"
)

// RequestLogger emits one structured line per request.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	if log == nil {
		log = logging.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
			logging.String("client", c.ClientIP()))
	}
}
