// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"llm-gateway/pkg/errors"
	"llm-gateway/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", err),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				// SSE 已开始输出时只能中断连接
				if c.Writer.Written() {
					c.Abort()
					return
				}
				appErr := errors.ErrInternalError
				c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
					"code":     appErr.Code,
					"message":  appErr.Message,
					"trace_id": c.GetString("trace_id"),
				})
			}
		}()

		c.Next()
	}
}
