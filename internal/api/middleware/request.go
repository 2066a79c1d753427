package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adamwilson22/Velaa-Backend/internal/logger"
	"github.com/adamwilson22/Velaa-Backend/internal/metrics"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestLogger tags each request with an id, attaches a scoped zerolog
// logger to the request context and logs the outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		l := logger.WithRequestID(id)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		ev := l.Info()
		if c.Writer.Status() >= 500 {
			ev = l.Error()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Metrics counts requests by route template, method and status code.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Request(route, c.Request.Method, strconv.Itoa(c.Writer.Status()))
	}
}
