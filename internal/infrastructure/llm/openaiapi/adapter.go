package openaiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

var _ output.LLMPort = (*Adapter)(nil)

var ErrEmptyResponse = errors.New("no choices in response")

type Adapter struct {
	client *openai.Client
	model  string
	retry  RetryPolicy
	logger output.LoggerPort
	sleep  func(ctx context.Context, d time.Duration) error
}

type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Retry   RetryPolicy
	Logger  output.LoggerPort
	// LogBodies logs request bodies; they contain the whole transcript.
	LogBodies bool
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://api.openai.com/v1",
		Retry: RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

type loggingTransport struct {
	base      http.RoundTripper
	logger    output.LoggerPort
	logBodies bool
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	fields := []any{"method", req.Method, "url", req.URL.String()}
	if t.logBodies && req.Body != nil {
		bodyBytes, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var requestData map[string]interface{}
		if len(bodyBytes) > 0 {
			json.Unmarshal(bodyBytes, &requestData)
		}
		fields = append(fields, "body", requestData)
	}
	t.logger.Debug("HTTP Request", fields...)

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn("HTTP Request failed", "url", req.URL.String(), "error", err)
		return nil, err
	}

	t.logger.Debug("HTTP Response",
		"status", resp.Status,
		"statusCode", resp.StatusCode,
		"durationMs", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func NewAdapter(cfg Config) *Adapter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = output.NopLogger{}
	} else {
		config.HTTPClient = &http.Client{
			Transport: &loggingTransport{
				base:      http.DefaultTransport,
				logger:    logger,
				logBodies: cfg.LogBodies,
			},
		}
	}

	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return &Adapter{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
		retry:  retry,
		logger: logger,
		sleep:  sleepContext,
	}
}

func (a *Adapter) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		request.Tools = convertTools(req.Tools)
		request.ToolChoice = "auto"
	}

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	delay := a.retry.InitialDelay
	for attempt := 1; ; attempt++ {
		resp, err = a.client.CreateChatCompletion(ctx, request)
		if err == nil || attempt >= a.retry.MaxAttempts || !isRetryable(err) {
			break
		}

		a.logger.Warn("Chat completion failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
		if sleepErr := a.sleep(ctx, jitter(delay)); sleepErr != nil {
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}
		delay *= 2
		if a.retry.MaxDelay > 0 && delay > a.retry.MaxDelay {
			delay = a.retry.MaxDelay
		}
	}
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	msg := convertResponseMessage(resp.Choices[0].Message)
	kind := output.ResponseText
	if msg.HasToolCalls() {
		kind = output.ResponseToolCalls
	}
	return &output.ChatResponse{Kind: kind, Message: msg}, nil
}

// isRetryable reports rate limits and provider side failures.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)/2+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func convertMessages(messages []entity.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		if msg.Name != "" {
			oaiMsg.Name = msg.Name
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}

		result = append(result, oaiMsg)
	}
	return result
}

func convertTools(tools []entity.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(t.Name),
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return result
}

func convertResponseMessage(msg openai.ChatCompletionMessage) entity.Message {
	result := entity.Message{
		Role:    entity.RoleAssistant,
		Content: msg.Content,
	}

	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		result.ToolCalls = append(result.ToolCalls, entity.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return result
}
