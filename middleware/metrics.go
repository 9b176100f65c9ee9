package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/escrow-demo/metrics"
)

// RequestMetrics records every request under its route template, so
// /payments/:id counts as one series regardless of the id.
func RequestMetrics(m *metrics.EscrowMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTP(c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
