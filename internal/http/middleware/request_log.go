package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

// quietPaths are probed constantly and only logged at debug level.
var quietPaths = map[string]bool{
	"/healthcheck": true,
	"/readyz":      true,
	"/metrics":     true,
}

// RequestLogger logs one line per request. Streams are logged when they
// close, so their duration is the session length rather than a latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "resource_id", id)
		}
		fields = append(fields, ctxutil.LogFields(c.Request.Context())...)
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		msg := "HTTP request"
		if isEventStream(c) {
			msg = "HTTP stream closed"
		}
		switch {
		case status >= 500:
			log.Error(msg, fields...)
		case status >= 400:
			log.Warn(msg, fields...)
		case quietPaths[path]:
			log.Debug(msg, fields...)
		default:
			log.Info(msg, fields...)
		}
	}
}

func isEventStream(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}
