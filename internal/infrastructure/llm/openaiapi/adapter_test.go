package openaiapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertResponseMessage_WithContent(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role:    "assistant",
		Content: "Hello, world!",
	}

	result := convertResponseMessage(msg)

	assert.Equal(t, entity.RoleAssistant, result.Role)
	assert.Equal(t, "Hello, world!", result.Content)
	assert.False(t, result.HasToolCalls())
}

func TestConvertResponseMessage_WithToolCalls(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role: "assistant",
		ToolCalls: []openai.ToolCall{
			{
				ID:   "call_123",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "get_address_details",
					Arguments: `{"address":"addr_test1qz"}`,
				},
			},
			{
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "search_cardano_knowledge",
					Arguments: `{"query":"staking"}`,
				},
			},
		},
	}

	result := convertResponseMessage(msg)

	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, "call_123", result.ToolCalls[0].ID)
	assert.Equal(t, "get_address_details", result.ToolCalls[0].Name)
	assert.Contains(t, result.ToolCalls[1].ID, "call_")
}

func TestConvertMessages_ToolTurns(t *testing.T) {
	messages := []entity.Message{
		{Role: entity.RoleSystem, Content: "sys"},
		{Role: entity.RoleUser, Content: "Hello"},
		{
			Role: entity.RoleAssistant,
			ToolCalls: []entity.ToolCall{
				{ID: "call_1", Name: "get_address_details", Arguments: `{}`},
			},
		},
		{Role: entity.RoleTool, ToolCallID: "call_1", Name: "get_address_details", Content: "Error: invalid address"},
	}

	result := convertMessages(messages)

	require.Len(t, result, 4)
	assert.Equal(t, "system", result[0].Role)
	assert.Equal(t, "user", result[1].Role)
	require.Len(t, result[2].ToolCalls, 1)
	assert.Equal(t, openai.ToolTypeFunction, result[2].ToolCalls[0].Type)
	assert.Equal(t, "call_1", result[3].ToolCallID)
	assert.Equal(t, "tool", result[3].Role)
}

type completionServer struct {
	mu       sync.Mutex
	calls    atomic.Int32
	requests []openai.ChatCompletionRequest
	handler  func(n int32, w http.ResponseWriter)
}

func (s *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.calls.Add(1)
	body, _ := io.ReadAll(r.Body)
	var req openai.ChatCompletionRequest
	_ = json.Unmarshal(body, &req)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	s.handler(n, w)
}

func writeCompletion(w http.ResponseWriter, msg openai.ChatCompletionMessage) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Model:   "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{{Index: 0, Message: msg, FinishReason: openai.FinishReasonStop}},
	})
}

func newTestAdapter(t *testing.T, srv *completionServer) *Adapter {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := DefaultConfig("sk-test", "gpt-4o-mini")
	cfg.BaseURL = ts.URL
	a := NewAdapter(cfg)
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestChat_TextResponse(t *testing.T) {
	srv := &completionServer{handler: func(_ int32, w http.ResponseWriter) {
		writeCompletion(w, openai.ChatCompletionMessage{Role: "assistant", Content: "ADA is Cardano's native token."})
	}}
	a := newTestAdapter(t, srv)

	resp, err := a.Chat(context.Background(), output.ChatRequest{
		Messages:    []entity.Message{{Role: entity.RoleUser, Content: "What is ADA?"}},
		Temperature: 0.1,
	})

	require.NoError(t, err)
	assert.Equal(t, output.ResponseText, resp.Kind)
	assert.Equal(t, "ADA is Cardano's native token.", resp.Message.Content)
	require.Len(t, srv.requests, 1)
	assert.Equal(t, "gpt-4o-mini", srv.requests[0].Model)
	assert.Empty(t, srv.requests[0].Tools)
	assert.Nil(t, srv.requests[0].ToolChoice)
}

func TestChat_ToolCallResponse(t *testing.T) {
	srv := &completionServer{handler: func(_ int32, w http.ResponseWriter) {
		writeCompletion(w, openai.ChatCompletionMessage{
			Role: "assistant",
			ToolCalls: []openai.ToolCall{{
				ID:       "call_9",
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: "get_address_details", Arguments: `{"address":"addr_test1"}`},
			}},
		})
	}}
	a := newTestAdapter(t, srv)

	resp, err := a.Chat(context.Background(), output.ChatRequest{
		Model:    "gpt-4o",
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "balance?"}},
		Tools: []entity.ToolDefinition{{
			Name:        entity.ToolGetAddressDetails,
			Description: "address details",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, output.ResponseToolCalls, resp.Kind)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.Message.ToolCalls[0].ID)
	require.Len(t, srv.requests, 1)
	assert.Equal(t, "gpt-4o", srv.requests[0].Model)
	require.Len(t, srv.requests[0].Tools, 1)
	assert.Equal(t, "get_address_details", srv.requests[0].Tools[0].Function.Name)
}

func TestChat_RetriesRateLimit(t *testing.T) {
	srv := &completionServer{handler: func(n int32, w http.ResponseWriter) {
		if n == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
			return
		}
		writeCompletion(w, openai.ChatCompletionMessage{Role: "assistant", Content: "ok"})
	}}
	a := newTestAdapter(t, srv)

	resp, err := a.Chat(context.Background(), output.ChatRequest{
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.EqualValues(t, 2, srv.calls.Load())
}

func TestChat_DoesNotRetryClientErrors(t *testing.T) {
	srv := &completionServer{handler: func(_ int32, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}}
	a := newTestAdapter(t, srv)

	_, err := a.Chat(context.Background(), output.ChatRequest{
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
	assert.EqualValues(t, 1, srv.calls.Load())
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := &completionServer{handler: func(_ int32, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}}
	a := newTestAdapter(t, srv)

	_, err := a.Chat(context.Background(), output.ChatRequest{
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "hi"}},
	})

	assert.ErrorIs(t, err, ErrEmptyResponse)
}
