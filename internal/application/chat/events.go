// Package chat 实现流式对话网关：上下文组装、生成协调、同线程互斥与重新生成
package chat

import (
	"sync"

	"llm-gateway/internal/domain/model"
)

// EventType 对外事件类型
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// DonePayload 成功结束事件
type DonePayload struct {
	Text         string             `json:"text"`
	Usage        *model.Usage       `json:"usage,omitempty"`
	FinishReason model.FinishReason `json:"finish_reason"`
	Model        string             `json:"model"`
	MessageID    string             `json:"message_id"`
	CostUSD      *float64           `json:"cost_usd,omitempty"`
}

// ErrorPayload 失败结束事件
type ErrorPayload struct {
	Kind      model.ErrorKind `json:"kind"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
	MessageID string          `json:"message_id,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Event 对外事件。每个生成恰好一个终止事件（done 或 error），所有 chunk 都在它之前
type Event struct {
	Type  EventType
	Text  string
	Done  *DonePayload
	Error *ErrorPayload
}

func chunkEvent(text string) Event {
	return Event{Type: EventChunk, Text: text}
}

func doneEvent(p DonePayload) Event {
	return Event{Type: EventDone, Done: &p}
}

func errorEvent(kind model.ErrorKind, message string, retryable bool) Event {
	if message == "" {
		message = string(kind)
	}
	return Event{Type: EventError, Error: &ErrorPayload{Kind: kind, Message: message, Retryable: retryable}}
}

// IsTerminal done 或 error
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// EventStream 单个生成的事件流。消费者读取 Events 直到通道关闭；
// 提前离开时调用 Close，生成会以 client_disconnected 取消。
type EventStream struct {
	GenerationID string

	ch        chan Event
	closed    chan struct{}
	closeOnce sync.Once
	onClose   func()
}

const eventBuffer = 64

func newEventStream(generationID string, onClose func()) *EventStream {
	return &EventStream{
		GenerationID: generationID,
		ch:           make(chan Event, eventBuffer),
		closed:       make(chan struct{}),
		onClose:      onClose,
	}
}

// Events 事件通道，终止事件之后关闭
func (s *EventStream) Events() <-chan Event {
	return s.ch
}

// Close 消费者不再读取
func (s *EventStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// send 投递事件；消费者已离开时返回 false
func (s *EventStream) send(ev Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.closed:
		return false
	}
}

// finish 由生产方在终止事件之后调用
func (s *EventStream) finish() {
	close(s.ch)
}

// ReplayStream 按顺序投递给定事件后关闭的流，不关联任何生成
func ReplayStream(generationID string, events ...Event) *EventStream {
	s := newEventStream(generationID, nil)
	go func() {
		defer s.finish()
		for _, ev := range events {
			if !s.send(ev) {
				return
			}
		}
	}()
	return s
}
