package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"query-assistant/internal/application/port/input"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/application/service"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/usecase/conversation"
)

var _ input.QueryHandler = (*Gateway)(nil)

// ErrInvalidQuery is returned for queries that never reach an agent.
var ErrInvalidQuery = errors.New("invalid query")

const apologyPrefix = "I encountered an error while processing your request: "

type Gateway struct {
	agents service.AgentRegistry
	logger output.LoggerPort
}

func New(agents service.AgentRegistry, logger output.LoggerPort) *Gateway {
	return &Gateway{agents: agents, logger: logger}
}

func (g *Gateway) Handle(ctx context.Context, q entity.Query) (*entity.Answer, error) {
	if strings.TrimSpace(q.ThreadID.String()) == "" {
		return nil, fmt.Errorf("%w: thread_id is required", ErrInvalidQuery)
	}
	if strings.TrimSpace(q.Input) == "" {
		return nil, fmt.Errorf("%w: user_input is required", ErrInvalidQuery)
	}
	if q.Domain != nil && !q.Domain.Valid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidQuery, *q.Domain)
	}

	agent, ok := g.agents.Get(q.Agent())
	if !ok {
		return nil, fmt.Errorf("%w: agent %s is not available", ErrInvalidQuery, q.Agent())
	}

	result, err := agent.Run(ctx, q.ThreadID, composeInput(q))
	if err != nil {
		if errors.Is(err, conversation.ErrStore) {
			g.logger.Error("Conversation store failure", "agent", q.Agent().String(), "thread", q.ThreadID.String(), "error", err)
			return nil, err
		}
		g.logger.Warn("Query failed", "agent", q.Agent().String(), "thread", q.ThreadID.String(), "error", err)
		return &entity.Answer{Text: apologyPrefix + err.Error()}, nil
	}

	return &entity.Answer{
		Text:      result.FinalAnswer,
		Rounds:    result.Rounds,
		NewThread: result.NewThread,
	}, nil
}

// composeInput adds the domain hint and reply-language directive to the user turn.
func composeInput(q entity.Query) string {
	var sb strings.Builder
	if lang := strings.TrimSpace(q.Lang); lang != "" && !strings.EqualFold(lang, "en") {
		fmt.Fprintf(&sb, "[Respond in language: %s]\n", lang)
	}
	if q.Domain != nil {
		fmt.Fprintf(&sb, "[Legal domain: %s]\n", q.Domain.Title())
	}
	sb.WriteString(q.Input)
	return sb.String()
}
