package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"query-assistant/internal/adapter/tool"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/application/service"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/infrastructure/store/memory"
)

const testAddress = "addr_test1wryf65umuw5nuh8m4sjh9dka0mx7pwsmle0uyex8pf7f4ycj7y6tp"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedLLM struct {
	mu       sync.Mutex
	requests []output.ChatRequest
	respond  func(n int, req output.ChatRequest) (*output.ChatResponse, error)
}

func (s *scriptedLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	s.mu.Lock()
	n := len(s.requests)
	req.Messages = entity.Transcript(req.Messages).Clone()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.respond(n, req)
}

func (s *scriptedLLM) calls() []output.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]output.ChatRequest(nil), s.requests...)
}

// sequence answers the n-th call with the n-th response and repeats the last one.
func sequence(responses ...*output.ChatResponse) func(int, output.ChatRequest) (*output.ChatResponse, error) {
	return func(n int, _ output.ChatRequest) (*output.ChatResponse, error) {
		if n >= len(responses) {
			n = len(responses) - 1
		}
		return responses[n], nil
	}
}

type fakeChain struct{}

func (fakeChain) AddressDetails(_ context.Context, address string) (json.RawMessage, error) {
	return json.RawMessage(`{"address":"` + address + `","amount":[{"unit":"lovelace","quantity":"42000000"}]}`), nil
}

func (fakeChain) AddressTransactions(context.Context, string, int, output.TxOrder) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (fakeChain) Transaction(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type funcTool struct {
	name string
	fn   func(ctx context.Context, args string) (string, error)
}

func (f funcTool) Name() entity.ToolName { return entity.ToolName(f.name) }
func (f funcTool) Description() string   { return "test tool " + f.name }
func (f funcTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (f funcTool) Execute(ctx context.Context, a string) (string, error) { return f.fn(ctx, a) }

func testDefinition() entity.AgentDefinition {
	return entity.AgentDefinition{
		Type:         entity.AgentTypeCardano,
		Name:         "Cardano assistant",
		SystemPrompt: "You are a Cardano assistant.",
		Model:        "test-model",
		Temperature:  0.1,
	}
}

func newUseCase(t *testing.T, llm output.LLMPort, store output.ConversationStore, opts Options, extra ...output.ToolPort) *UseCase {
	t.Helper()
	registry := service.NewToolRegistry()
	registry.Register(tool.NewAddressDetailsTool(fakeChain{}, output.NopLogger{}))
	for _, tl := range extra {
		registry.Register(tl)
	}
	return New(testDefinition(), llm, registry, store, output.NopLogger{}, opts)
}

func addressCall(id, address string) entity.ToolCall {
	return entity.ToolCall{
		ID:        id,
		Name:      entity.ToolGetAddressDetails.String(),
		Arguments: fmt.Sprintf(`{"address":%q}`, address),
	}
}

func roles(transcript entity.Transcript) []entity.MessageRole {
	out := make([]entity.MessageRole, len(transcript))
	for i, m := range transcript {
		out[i] = m.Role
	}
	return out
}

// requireToolCallsAnswered checks that every assistant tool call is directly
// followed by exactly one matching tool-result turn.
func requireToolCallsAnswered(t *testing.T, msgs []entity.Message) {
	t.Helper()
	for i, m := range msgs {
		if !m.HasToolCalls() {
			continue
		}
		require.GreaterOrEqual(t, len(msgs)-i-1, len(m.ToolCalls), "tool calls at %d are not answered", i)
		for j, tc := range m.ToolCalls {
			result := msgs[i+1+j]
			require.Equal(t, entity.RoleTool, result.Role)
			require.Equal(t, tc.ID, result.ToolCallID)
		}
	}
}

func load(t *testing.T, store output.ConversationStore, id entity.ThreadID) entity.Transcript {
	t.Helper()
	transcript, err := store.Get(context.Background(), entity.ThreadKey{Agent: entity.AgentTypeCardano, ID: id})
	require.NoError(t, err)
	return transcript
}

func TestRun_NewThreadWithToolCall(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("", addressCall("call_1", testAddress)),
		output.TextResponse("The address holds 42 ADA."),
	)}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	result, err := uc.Run(context.Background(), "7", "What is the balance of "+testAddress+"?")
	require.NoError(t, err)
	assert.Equal(t, "The address holds 42 ADA.", result.FinalAnswer)
	assert.Equal(t, 2, result.Rounds)
	assert.True(t, result.NewThread)

	transcript := load(t, store, "7")
	assert.Equal(t, []entity.MessageRole{
		entity.RoleSystem, entity.RoleUser, entity.RoleAssistant, entity.RoleTool, entity.RoleAssistant,
	}, roles(transcript))
	assert.Equal(t, "You are a Cardano assistant.", transcript[0].Content)
	assert.Equal(t, entity.ToolGetAddressDetails.String(), transcript[2].ToolCalls[0].Name)
	assert.Equal(t, "call_1", transcript[3].ToolCallID)
	assert.Contains(t, transcript[3].Content, "42000000")

	calls := llm.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "test-model", calls[0].Model)
	assert.InDelta(t, 0.1, calls[0].Temperature, 1e-6)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, entity.ToolGetAddressDetails, calls[0].Tools[0].Name)
	assert.Len(t, calls[1].Messages, 4)
	requireToolCallsAnswered(t, calls[1].Messages)
}

func TestRun_ExistingThreadIsNotReset(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("", addressCall("call_1", testAddress)),
		output.TextResponse("The address holds 42 ADA."),
		output.TextResponse("It has no transactions yet."),
	)}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	_, err := uc.Run(context.Background(), "7", "What is the balance of "+testAddress+"?")
	require.NoError(t, err)
	before := load(t, store, "7")

	result, err := uc.Run(context.Background(), "7", "And its transactions?")
	require.NoError(t, err)
	assert.False(t, result.NewThread)
	assert.Equal(t, "It has no transactions yet.", result.FinalAnswer)

	after := load(t, store, "7")
	require.Len(t, after, len(before)+2)
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, "And its transactions?", after[len(before)].Content)

	systems := 0
	for _, m := range after {
		if m.Role == entity.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)

	calls := llm.calls()
	assert.Len(t, calls[2].Messages, len(before)+1)
}

func TestRun_UserMessagesKeepSubmissionOrder(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(output.TextResponse("ok"))}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	inputs := []string{"first", "second", "third", "fourth"}
	prevLen := 0
	for _, in := range inputs {
		_, err := uc.Run(context.Background(), "order", in)
		require.NoError(t, err)
		transcript := load(t, store, "order")
		assert.Greater(t, len(transcript), prevLen)
		prevLen = len(transcript)
	}

	var users []string
	for _, m := range load(t, store, "order") {
		if m.Role == entity.RoleUser {
			users = append(users, m.Content)
		}
	}
	assert.Equal(t, inputs, users)
}

func TestRun_InvalidAddressBecomesToolError(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("", addressCall("call_1", "addr_test1notvalid")),
		output.TextResponse("That address does not look valid, please check it."),
	)}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	result, err := uc.Run(context.Background(), "bad", "Balance of addr_test1notvalid?")
	require.NoError(t, err)
	assert.NotEmpty(t, result.FinalAnswer)

	transcript := load(t, store, "bad")
	require.Len(t, transcript, 5)
	assert.True(t, strings.HasPrefix(transcript[3].Content, "Error: "), transcript[3].Content)
	assert.Contains(t, transcript[3].Content, "invalid argument")
}

func TestRun_UnknownToolAndPanicAreObservations(t *testing.T) {
	panicky := funcTool{name: "panicky", fn: func(context.Context, string) (string, error) {
		panic("boom")
	}}
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("checking",
			entity.ToolCall{ID: "a", Name: "does_not_exist", Arguments: "{}"},
			entity.ToolCall{ID: "b", Name: "panicky", Arguments: "{}"},
		),
		output.TextResponse("done"),
	)}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{}, panicky)

	_, err := uc.Run(context.Background(), "1", "hi")
	require.NoError(t, err)

	transcript := load(t, store, "1")
	require.Len(t, transcript, 6)
	requireToolCallsAnswered(t, transcript)
	assert.Equal(t, "Error: unknown tool 'does_not_exist'", transcript[3].Content)
	assert.Contains(t, transcript[4].Content, "panicky failed unexpectedly: boom")
}

func TestRun_ToolTimeout(t *testing.T) {
	slow := funcTool{name: "slow", fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("", entity.ToolCall{ID: "s", Name: "slow", Arguments: "{}"}),
		output.TextResponse("the lookup timed out"),
	)}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{ToolTimeout: 20 * time.Millisecond}, slow)

	_, err := uc.Run(context.Background(), "1", "hi")
	require.NoError(t, err)

	transcript := load(t, store, "1")
	assert.Contains(t, transcript[3].Content, "slow timed out after 20ms")
}

func TestRun_TruncatesLargeObservations(t *testing.T) {
	big := funcTool{name: "big", fn: func(context.Context, string) (string, error) {
		return strings.Repeat("x", maxObservationLen+100), nil
	}}
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("", entity.ToolCall{ID: "b", Name: "big", Arguments: "{}"}),
		output.TextResponse("ok"),
	)}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{}, big)

	_, err := uc.Run(context.Background(), "1", "hi")
	require.NoError(t, err)

	content := load(t, store, "1")[3].Content
	assert.Len(t, content, maxObservationLen+len("\n... (truncated)"))
	assert.True(t, strings.HasSuffix(content, "\n... (truncated)"))
}

func TestTruncateObservation_KeepsRunesWhole(t *testing.T) {
	// "€" is three bytes, so the limit lands inside the last rune
	value := strings.Repeat("x", maxObservationLen-1) + "€€"

	got := truncateObservation(value)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", maxObservationLen-1)+"\n... (truncated)", got)

	short := strings.Repeat("€", 10)
	assert.Equal(t, short, truncateObservation(short))
}

func TestRun_RoundCapReturnsFallback(t *testing.T) {
	n := 0
	llm := &scriptedLLM{respond: func(int, output.ChatRequest) (*output.ChatResponse, error) {
		n++
		return output.ToolCallResponse("", addressCall(fmt.Sprintf("call_%d", n), testAddress)), nil
	}}
	store := memory.New()
	registry := service.NewToolRegistry()
	registry.Register(tool.NewAddressDetailsTool(fakeChain{}, output.NopLogger{}))
	def := testDefinition()
	def.MaxRounds = 3
	uc := New(def, llm, registry, store, output.NopLogger{}, Options{})

	result, err := uc.Run(context.Background(), "loop", "keep going")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, result.FinalAnswer)
	assert.Equal(t, 3, result.Rounds)
	assert.Len(t, llm.calls(), 3)

	transcript := load(t, store, "loop")
	requireToolCallsAnswered(t, transcript)
	// system, user, 3 x (call, result), fallback
	require.Len(t, transcript, 2+3*2+1)
	last := transcript[len(transcript)-1]
	assert.Equal(t, entity.RoleAssistant, last.Role)
	assert.Equal(t, FallbackAnswer, last.Content)
}

func TestRun_DefaultsApplied(t *testing.T) {
	uc := New(testDefinition(), &scriptedLLM{}, service.NewToolRegistry(), memory.New(), output.NopLogger{}, Options{})
	assert.Equal(t, DefaultMaxRounds, uc.Definition().MaxRounds)
	assert.Equal(t, DefaultModelTimeout, uc.modelTimeout)
	assert.Equal(t, DefaultToolTimeout, uc.toolTimeout)
}

func TestRun_ModelFailureAbortsRequest(t *testing.T) {
	llm := &scriptedLLM{respond: func(int, output.ChatRequest) (*output.ChatResponse, error) {
		return nil, errors.New("provider unavailable")
	}}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	_, err := uc.Run(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModel)
	assert.Contains(t, err.Error(), "provider unavailable")

	assert.Equal(t, []entity.MessageRole{entity.RoleSystem, entity.RoleUser}, roles(load(t, store, "1")))
}

func TestRun_ModelTimeout(t *testing.T) {
	uc := newUseCase(t, blockingLLM{}, memory.New(), Options{ModelTimeout: 10 * time.Millisecond})

	_, err := uc.Run(context.Background(), "1", "hi")
	assert.ErrorIs(t, err, ErrModel)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "no response within 10ms")
}

type blockingLLM struct{}

func (blockingLLM) Chat(ctx context.Context, _ output.ChatRequest) (*output.ChatResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingAppendStore struct {
	*memory.Store
}

func (s failingAppendStore) Append(context.Context, entity.ThreadKey, ...entity.Message) error {
	return errors.New("disk full")
}

func TestRun_StoreFailureIsHard(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(output.TextResponse("ok"))}
	uc := newUseCase(t, llm, failingAppendStore{memory.New()}, Options{})

	_, err := uc.Run(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_FreshThreadsAreIndependent(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(output.TextResponse("hello"))}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	_, err := uc.Run(context.Background(), "a", "same input")
	require.NoError(t, err)
	_, err = uc.Run(context.Background(), "b", "same input")
	require.NoError(t, err)

	a, b := load(t, store, "a"), load(t, store, "b")
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)

	calls := llm.calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Messages, 2, "second thread must not see the first thread's turns")
}

func TestRun_ConcurrentRequestsOnNewThread(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ output.ChatRequest) (*output.ChatResponse, error) {
		if n%2 == 0 {
			return output.ToolCallResponse("", addressCall(fmt.Sprintf("call_%d", n), testAddress)), nil
		}
		return output.TextResponse("done"), nil
	}}
	store := memory.New()
	uc := newUseCase(t, llm, store, Options{})

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := uc.Run(context.Background(), "shared", fmt.Sprintf("question %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	transcript := load(t, store, "shared")
	assert.Equal(t, entity.RoleSystem, transcript[0].Role)
	systems, users := 0, 0
	for _, m := range transcript {
		switch m.Role {
		case entity.RoleSystem:
			systems++
		case entity.RoleUser:
			users++
		}
	}
	assert.Equal(t, 1, systems)
	assert.Equal(t, workers, users)
	// every run is user, call, result, answer
	assert.Len(t, transcript, 1+workers*4)
	requireToolCallsAnswered(t, transcript)
}

func TestRun_ProgressEvents(t *testing.T) {
	llm := &scriptedLLM{respond: sequence(
		output.ToolCallResponse("let me look", addressCall("call_1", testAddress)),
		output.TextResponse("done"),
	)}
	progress := &recordingProgress{}
	uc := newUseCase(t, llm, memory.New(), Options{Progress: progress})

	_, err := uc.Run(context.Background(), "1", "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"round 1/8",
		"thinking let me look",
		"start get_address_details",
		"result get_address_details ok",
		"round 2/8",
	}, progress.events)
}

type recordingProgress struct {
	events []string
}

func (p *recordingProgress) ShowRound(_ context.Context, round, maxRounds int) {
	p.events = append(p.events, fmt.Sprintf("round %d/%d", round, maxRounds))
}

func (p *recordingProgress) ShowThinking(_ context.Context, content string) {
	p.events = append(p.events, "thinking "+content)
}

func (p *recordingProgress) ShowToolStart(_ context.Context, name, _ string) {
	p.events = append(p.events, "start "+name)
}

func (p *recordingProgress) ShowToolResult(_ context.Context, name, _ string, isError bool) {
	status := "ok"
	if isError {
		status = "error"
	}
	p.events = append(p.events, "result "+name+" "+status)
}
