package handler

import (
	"github.com/gin-gonic/gin"

	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/llm"
	"llm-gateway/internal/interfaces/http/dto"
)

// ModelCatalog 已配置模型目录
type ModelCatalog interface {
	Models() []llm.ModelInfo
}

// ProviderStatusSource 提供商健康状态
type ProviderStatusSource interface {
	Statuses() []service.ProviderStatus
}

// LLMHandler 模型与提供商查询
type LLMHandler struct {
	catalog ModelCatalog
	status  ProviderStatusSource
}

// NewLLMHandler 创建处理器
func NewLLMHandler(catalog ModelCatalog, status ProviderStatusSource) *LLMHandler {
	return &LLMHandler{catalog: catalog, status: status}
}

// ListModels 列出可用模型
// @Summary 模型列表
// @Tags LLM
// @Produce json
// @Success 200 {object} dto.Response[dto.ModelListResponse]
// @Router /v1/llm/models [get]
func (h *LLMHandler) ListModels(c *gin.Context) {
	models := h.catalog.Models()
	if models == nil {
		models = []llm.ModelInfo{}
	}
	dto.Success(c, dto.ModelListResponse{Models: models})
}

// ListProviders 列出提供商状态
// @Summary 提供商状态
// @Tags LLM
// @Produce json
// @Success 200 {object} dto.Response[dto.ProviderListResponse]
// @Router /v1/llm/providers [get]
func (h *LLMHandler) ListProviders(c *gin.Context) {
	dto.Success(c, dto.ToProviderListResponse(h.status.Statuses()))
}
