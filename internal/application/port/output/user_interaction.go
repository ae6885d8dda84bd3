package output

import "context"

// ProgressPort receives loop progress for interactive front ends.
type ProgressPort interface {
	ShowRound(ctx context.Context, round, maxRounds int)
	ShowThinking(ctx context.Context, content string)
	ShowToolStart(ctx context.Context, toolName, arguments string)
	ShowToolResult(ctx context.Context, toolName, result string, isError bool)
}

type NopProgress struct{}

func (NopProgress) ShowRound(context.Context, int, int)                  {}
func (NopProgress) ShowThinking(context.Context, string)                 {}
func (NopProgress) ShowToolStart(context.Context, string, string)        {}
func (NopProgress) ShowToolResult(context.Context, string, string, bool) {}
