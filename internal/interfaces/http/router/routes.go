// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	if h.Chat != nil {
		threads := v1.Group("/threads")
		{
			threads.POST("/:tid/messages", h.Chat.SendMessage)
			threads.POST("/:tid/regenerate", h.Chat.Regenerate)
			threads.DELETE("/:tid/generation", h.Chat.CancelGeneration)
		}
	}

	if h.LLM != nil {
		llm := v1.Group("/llm")
		{
			llm.GET("/models", h.LLM.ListModels)
			llm.GET("/providers", h.LLM.ListProviders)
		}
	}
}
