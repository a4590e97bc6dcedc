package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"steamhunter/internal/pkg/metrics"
)

// RequestLogger 记录每次 HTTP 请求的元数据并上报指标。
//
// 指标里的 route 使用路由模板（如 /api/games/:id）而不是原始路径，
// 避免标签基数随 ID 膨胀；没有命中任何路由时记为 unmatched。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.Observe(latency.Seconds())

		if logger != nil {
			logger.Info("http request",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", status),
				slog.String("client_ip", c.ClientIP()),
				slog.String("latency", latency.String()),
			)
		}
	}
}
