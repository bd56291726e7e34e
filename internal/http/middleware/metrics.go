package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/observability"
)

// Metrics counts requests per route. Event streams are counted but left out
// of the latency histogram since their duration is a session length; the
// gateway reports those separately.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		if isEventStream(c) {
			m.CountAPI(c.Request.Method, route, status)
			return
		}
		m.ObserveAPI(c.Request.Method, route, status, time.Since(start))
	}
}
