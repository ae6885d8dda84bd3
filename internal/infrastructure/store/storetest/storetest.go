// Package storetest holds the behaviour every ConversationStore must show.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Factory func(t *testing.T) output.ConversationStore

func Run(t *testing.T, newStore Factory) {
	t.Run("GetOrCreateSeedsOnce", func(t *testing.T) { testGetOrCreateSeedsOnce(t, newStore(t)) })
	t.Run("AppendPreservesOrder", func(t *testing.T) { testAppendPreservesOrder(t, newStore(t)) })
	t.Run("AppendRequiresThread", func(t *testing.T) { testAppendRequiresThread(t, newStore(t)) })
	t.Run("RejectsInvalidTurnAtomically", func(t *testing.T) { testRejectsInvalidTurn(t, newStore(t)) })
	t.Run("ThreadsAreIsolated", func(t *testing.T) { testThreadsIsolated(t, newStore(t)) })
	t.Run("ConcurrentCreateSeedsOnce", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("ToolCallsRoundTrip", func(t *testing.T) { testToolCallsRoundTrip(t, newStore(t)) })
	t.Run("ReadsAreCopies", func(t *testing.T) { testReadsAreCopies(t, newStore(t)) })
}

var (
	system = entity.Message{Role: entity.RoleSystem, Content: "you are a test assistant"}
	key    = entity.ThreadKey{Agent: entity.AgentTypeCardano, ID: "7"}
)

func user(text string) entity.Message {
	return entity.Message{Role: entity.RoleUser, Content: text}
}

func testGetOrCreateSeedsOnce(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()

	isNew, err := s.IsNew(ctx, key)
	require.NoError(t, err)
	assert.True(t, isNew)

	tr, created, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user("first"))
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, tr, 2)
	assert.Equal(t, entity.RoleSystem, tr[0].Role)

	tr, created, err = s.GetOrCreate(ctx, key, []entity.Message{system}, user("second"))
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, tr, 3)
	assert.Equal(t, "second", tr[2].Content)

	systems := 0
	for _, m := range tr {
		if m.Role == entity.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)

	isNew, err = s.IsNew(ctx, key)
	require.NoError(t, err)
	assert.False(t, isNew)
}

func testAppendPreservesOrder(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()
	_, _, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user("q1"))
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, key,
		entity.Message{Role: entity.RoleAssistant, Content: "a1"},
		user("q2"),
		entity.Message{Role: entity.RoleAssistant, Content: "a2"},
	))

	tr, err := s.Get(ctx, key)
	require.NoError(t, err)
	var contents []string
	for _, m := range tr {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{system.Content, "q1", "a1", "q2", "a2"}, contents)
}

func testAppendRequiresThread(t *testing.T, s output.ConversationStore) {
	err := s.Append(context.Background(), key, user("orphan"))
	assert.ErrorIs(t, err, output.ErrThreadNotFound)
}

func testRejectsInvalidTurn(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()
	_, _, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user("q"))
	require.NoError(t, err)

	err = s.Append(ctx, key,
		entity.Message{Role: entity.RoleAssistant, Content: "ok"},
		entity.Message{Role: "narrator", Content: "bad"},
	)
	assert.ErrorIs(t, err, output.ErrInvalidTurn)

	tr, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, tr, 2)
}

func testThreadsIsolated(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()
	legal := entity.ThreadKey{Agent: entity.AgentTypeLegal, ID: key.ID}
	other := entity.ThreadKey{Agent: entity.AgentTypeCardano, ID: "8"}

	_, _, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user("same"))
	require.NoError(t, err)
	_, created, err := s.GetOrCreate(ctx, legal, []entity.Message{system}, user("same"))
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = s.GetOrCreate(ctx, other, []entity.Message{system}, user("same"))
	require.NoError(t, err)
	assert.True(t, created)

	for _, k := range []entity.ThreadKey{key, legal, other} {
		tr, err := s.Get(ctx, k)
		require.NoError(t, err)
		assert.Len(t, tr, 2, k.String())
	}
}

func testConcurrentCreate(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()
	const n = 16

	var wg sync.WaitGroup
	createdCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user(fmt.Sprintf("q%d", i)))
			assert.NoError(t, err)
			createdCount <- created
		}(i)
	}
	wg.Wait()
	close(createdCount)

	creations := 0
	for c := range createdCount {
		if c {
			creations++
		}
	}
	assert.Equal(t, 1, creations)

	tr, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Len(t, tr, n+1)
	assert.Equal(t, entity.RoleSystem, tr[0].Role)
	for _, m := range tr[1:] {
		assert.Equal(t, entity.RoleUser, m.Role)
	}
}

func testToolCallsRoundTrip(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()
	_, _, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user("balance?"))
	require.NoError(t, err)

	call := entity.ToolCall{ID: "call_1", Name: "get_address_details", Arguments: `{"address":"addr_test1"}`}
	require.NoError(t, s.Append(ctx, key,
		entity.Message{Role: entity.RoleAssistant, ToolCalls: []entity.ToolCall{call}},
		entity.Message{Role: entity.RoleTool, ToolCallID: "call_1", Name: "get_address_details", Content: "{}"},
	))

	tr, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Len(t, tr, 4)
	assert.Equal(t, []entity.ToolCall{call}, tr[2].ToolCalls)
	assert.Equal(t, "call_1", tr[3].ToolCallID)
	assert.Equal(t, "get_address_details", tr[3].Name)
}

func testReadsAreCopies(t *testing.T, s output.ConversationStore) {
	ctx := context.Background()
	tr, _, err := s.GetOrCreate(ctx, key, []entity.Message{system}, user("q"))
	require.NoError(t, err)

	tr[1].Content = "mutated"

	stored, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "q", stored[1].Content)
}
