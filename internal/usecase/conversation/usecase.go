package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"query-assistant/internal/application/port/input"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

var _ input.Conversation = (*UseCase)(nil)

var (
	// ErrModel wraps model client failures. The current request is aborted.
	ErrModel = errors.New("model request failed")
	// ErrStore wraps conversation store failures.
	ErrStore = errors.New("conversation store failure")
)

const (
	DefaultMaxRounds    = 8
	DefaultModelTimeout = 60 * time.Second
	DefaultToolTimeout  = 20 * time.Second

	maxObservationLen = 20000

	FallbackAnswer = "I could not complete the answer within the allowed number of tool calls. " +
		"Please try rephrasing the question or asking about one thing at a time."
)

type Options struct {
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
	Progress     output.ProgressPort
}

type UseCase struct {
	def      entity.AgentDefinition
	llm      output.LLMPort
	tools    output.ToolRegistry
	store    output.ConversationStore
	logger   output.LoggerPort
	progress output.ProgressPort

	modelTimeout time.Duration
	toolTimeout  time.Duration
}

func New(
	def entity.AgentDefinition,
	llm output.LLMPort,
	tools output.ToolRegistry,
	store output.ConversationStore,
	logger output.LoggerPort,
	opts Options,
) *UseCase {
	if def.MaxRounds <= 0 {
		def.MaxRounds = DefaultMaxRounds
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.Progress == nil {
		opts.Progress = output.NopProgress{}
	}
	return &UseCase{
		def:          def,
		llm:          llm,
		tools:        tools,
		store:        store,
		logger:       logger.WithField("agent", def.Type.String()),
		progress:     opts.Progress,
		modelTimeout: opts.ModelTimeout,
		toolTimeout:  opts.ToolTimeout,
	}
}

func (uc *UseCase) Definition() entity.AgentDefinition {
	return uc.def
}

// Run appends userInput to the thread and alternates model calls and tool
// dispatch until the model answers in text or the round cap is reached.
// Executions on the same thread are serialized.
func (uc *UseCase) Run(ctx context.Context, threadID entity.ThreadID, userInput string) (*input.RunResult, error) {
	key := entity.ThreadKey{Agent: uc.def.Type, ID: threadID}
	log := uc.logger.WithField("thread", threadID.String())

	release, err := uc.store.Lock(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waiting for thread %s: %w", key, ctxErr)
		}
		return nil, fmt.Errorf("%w: lock %s: %w", ErrStore, key, err)
	}
	defer release()

	// Writes outlive caller cancellation so a finished exchange is never dropped.
	storeCtx := context.WithoutCancel(ctx)

	transcript, created, err := uc.store.GetOrCreate(storeCtx, key,
		[]entity.Message{uc.def.SystemMessage()},
		entity.Message{Role: entity.RoleUser, Content: userInput},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStore, key, err)
	}
	if created {
		log.Info("Started new thread")
	}

	messages := []entity.Message(transcript)
	toolDefs := uc.tools.Definitions(uc.def.Tools...)

	for round := 1; round <= uc.def.MaxRounds; round++ {
		log.Debug("Starting round", "round", round, "turns", len(messages))
		uc.progress.ShowRound(ctx, round, uc.def.MaxRounds)

		resp, err := uc.chat(ctx, messages, toolDefs)
		if err != nil {
			log.Error("Model request failed", "round", round, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrModel, err)
		}

		if resp.Kind != output.ResponseToolCalls || !resp.Message.HasToolCalls() {
			answer := entity.Message{Role: entity.RoleAssistant, Content: resp.Message.Content}
			if err := uc.store.Append(storeCtx, key, answer); err != nil {
				return nil, fmt.Errorf("%w: append answer to %s: %w", ErrStore, key, err)
			}
			log.Info("Answered", "rounds", round)
			return &input.RunResult{FinalAnswer: answer.Content, Rounds: round, NewThread: created}, nil
		}

		call := resp.Message.Clone()
		call.Role = entity.RoleAssistant
		if call.Content != "" {
			uc.progress.ShowThinking(ctx, call.Content)
		}

		batch := make([]entity.Message, 0, len(call.ToolCalls)+1)
		batch = append(batch, call)
		for _, tc := range call.ToolCalls {
			result := uc.executeTool(ctx, log, tc)
			batch = append(batch, entity.Message{
				Role:       entity.RoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Content:    result.Content(),
			})
		}

		if err := uc.store.Append(storeCtx, key, batch...); err != nil {
			return nil, fmt.Errorf("%w: append tool round to %s: %w", ErrStore, key, err)
		}
		messages = append(messages, batch...)
	}

	log.Warn("Round limit reached", "maxRounds", uc.def.MaxRounds)
	fallback := entity.Message{Role: entity.RoleAssistant, Content: FallbackAnswer}
	if err := uc.store.Append(storeCtx, key, fallback); err != nil {
		return nil, fmt.Errorf("%w: append fallback to %s: %w", ErrStore, key, err)
	}
	return &input.RunResult{FinalAnswer: FallbackAnswer, Rounds: uc.def.MaxRounds, NewThread: created}, nil
}

func (uc *UseCase) chat(ctx context.Context, messages []entity.Message, tools []entity.ToolDefinition) (*output.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.modelTimeout)
	defer cancel()

	resp, err := uc.llm.Chat(ctx, output.ChatRequest{
		Model:       uc.def.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: uc.def.Temperature,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("no response within %s: %w", uc.modelTimeout, err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty response")
	}
	return resp, nil
}

func (uc *UseCase) executeTool(ctx context.Context, log output.LoggerPort, tc entity.ToolCall) entity.ToolResult {
	uc.progress.ShowToolStart(ctx, tc.Name, tc.Arguments)

	result := uc.dispatch(ctx, log, tc)
	uc.progress.ShowToolResult(ctx, tc.Name, result.Content(), !result.OK)
	return result
}

func (uc *UseCase) dispatch(ctx context.Context, log output.LoggerPort, tc entity.ToolCall) entity.ToolResult {
	tool, ok := uc.tools.Get(entity.ToolName(tc.Name))
	if !ok {
		log.Warn("Unknown tool called", "name", tc.Name)
		return entity.ToolError(fmt.Sprintf("unknown tool '%s'", tc.Name))
	}

	log.Info("Executing tool", "name", tc.Name, "args", tc.Arguments)

	ctx, cancel := context.WithTimeout(ctx, uc.toolTimeout)
	defer cancel()

	value, err := invoke(ctx, tool, tc.Arguments)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out after %s", tc.Name, uc.toolTimeout)
		}
		log.Error("Tool execution failed", "name", tc.Name, "error", err)
		return entity.ToolError(err.Error())
	}

	value = truncateObservation(value)

	log.Debug("Tool completed", "name", tc.Name, "resultLen", len(value))
	return entity.ToolValue(value)
}

// truncateObservation caps value at maxObservationLen bytes without splitting a rune.
func truncateObservation(value string) string {
	if len(value) <= maxObservationLen {
		return value
	}
	cut := maxObservationLen
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "\n... (truncated)"
}

func invoke(ctx context.Context, tool output.ToolPort, arguments string) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s failed unexpectedly: %v", tool.Name(), r)
		}
	}()
	return tool.Execute(ctx, arguments)
}
