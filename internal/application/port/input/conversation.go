package input

import (
	"context"

	"query-assistant/internal/domain/entity"
)

type RunResult struct {
	FinalAnswer string
	Rounds      int
	NewThread   bool
}

// Conversation runs one agent turn on a thread.
type Conversation interface {
	Definition() entity.AgentDefinition
	Run(ctx context.Context, threadID entity.ThreadID, userInput string) (*RunResult, error)
}
