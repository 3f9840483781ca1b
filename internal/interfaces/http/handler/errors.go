package handler

import (
	"github.com/gin-gonic/gin"

	"llm-gateway/internal/interfaces/http/dto"
	apperrors "llm-gateway/pkg/errors"
	"llm-gateway/pkg/logger"
)

// respondError 按 AppError 映射状态码；未知错误记录日志后返回 500
func respondError(c *gin.Context, err error, action string) {
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), action+" failed", err)
		}
		dto.AppError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), action+" failed", err)
	dto.InternalError(c, action+" failed")
}
