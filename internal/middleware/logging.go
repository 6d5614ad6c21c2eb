package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"talklens-go/pkg/log"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 聊天与语音接口的请求体可能较大且含隐私内容，只记录元信息。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}
