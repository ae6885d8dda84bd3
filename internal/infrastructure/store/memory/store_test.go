package memory

import (
	"context"
	"testing"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/infrastructure/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) output.ConversationStore {
		return New()
	})
}

func TestStore_ClosedRejectsCalls(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), entity.ThreadKey{Agent: entity.AgentTypeCardano, ID: "1"})
	assert.ErrorIs(t, err, output.ErrStoreClosed)
}
