package output

import (
	"context"

	"query-assistant/internal/domain/entity"
)

type LLMPort interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type ChatRequest struct {
	Model       string
	Messages    []entity.Message
	Tools       []entity.ToolDefinition
	Temperature float32
}

// ResponseKind tags what the model answered with.
type ResponseKind int

const (
	ResponseText ResponseKind = iota
	ResponseToolCalls
)

func (k ResponseKind) String() string {
	if k == ResponseToolCalls {
		return "tool_calls"
	}
	return "text"
}

type ChatResponse struct {
	Kind    ResponseKind
	Message entity.Message
}

func TextResponse(content string) *ChatResponse {
	return &ChatResponse{
		Kind:    ResponseText,
		Message: entity.Message{Role: entity.RoleAssistant, Content: content},
	}
}

func ToolCallResponse(content string, calls ...entity.ToolCall) *ChatResponse {
	return &ChatResponse{
		Kind: ResponseToolCalls,
		Message: entity.Message{
			Role:      entity.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		},
	}
}
