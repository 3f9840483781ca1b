package handler

import (
	"context"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"llm-gateway/internal/application/chat"
	"llm-gateway/internal/interfaces/http/dto"
	apperrors "llm-gateway/pkg/errors"
	"llm-gateway/pkg/logger"
)

// ChatService 对话生成服务
type ChatService interface {
	SendTurn(ctx context.Context, threadID, text string, attachmentIDs []string) (*chat.EventStream, error)
	Regenerate(ctx context.Context, threadID string) (*chat.EventStream, error)
	Cancel(ctx context.Context, threadID string) bool
}

// ChatHandler 对话处理器
type ChatHandler struct {
	svc ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// SendMessage 发送消息并流式返回回复
// @Summary 发送消息
// @Description 追加用户消息并通过 SSE 返回 chunk / done / error 事件
// @Tags Threads
// @Accept json
// @Produce text/event-stream
// @Param tid path string true "线程 ID"
// @Param body body dto.SendMessageRequest true "消息"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/threads/{tid}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail("invalid request body: "+err.Error()))
		return
	}

	stream, err := h.svc.SendTurn(c.Request.Context(), threadIDParam(c), req.Content, req.AttachmentIDs)
	if err != nil {
		respondError(c, err, "send message")
		return
	}
	writeEventStream(c, stream)
}

// Regenerate 重新生成最后一条助手回复
// @Summary 重新生成
// @Tags Threads
// @Produce text/event-stream
// @Param tid path string true "线程 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/threads/{tid}/regenerate [post]
func (h *ChatHandler) Regenerate(c *gin.Context) {
	stream, err := h.svc.Regenerate(c.Request.Context(), threadIDParam(c))
	if err != nil {
		respondError(c, err, "regenerate")
		return
	}
	writeEventStream(c, stream)
}

// CancelGeneration 取消线程上正在进行的生成
// @Summary 取消生成
// @Tags Threads
// @Produce json
// @Param tid path string true "线程 ID"
// @Success 200 {object} dto.Response[dto.CancelResponse]
// @Router /v1/threads/{tid}/generation [delete]
func (h *ChatHandler) CancelGeneration(c *gin.Context) {
	threadID := threadIDParam(c)
	if threadID == "" {
		dto.AppError(c, apperrors.ErrInvalidParam.WithDetail("thread id is required"))
		return
	}
	cancelled := h.svc.Cancel(c.Request.Context(), threadID)
	dto.Success(c, dto.CancelResponse{Cancelled: cancelled})
}

func threadIDParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("tid"))
}

// writeEventStream 将事件流写为 SSE，直到通道关闭或客户端断开
func writeEventStream(c *gin.Context, stream *chat.EventStream) {
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Generation-ID", stream.GenerationID)

	events := stream.Events()
	gone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			name, data := dto.SSEvent(ev)
			c.SSEvent(name, data)
			return true
		case <-gone:
			logger.Debug(c.Request.Context(), "client left event stream", "generation_id", stream.GenerationID)
			return false
		}
	})
}
