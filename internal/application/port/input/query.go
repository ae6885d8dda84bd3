package input

import (
	"context"

	"query-assistant/internal/domain/entity"
)

// QueryHandler answers a user query. It returns an error only for failures the
// caller must see as hard faults; recoverable failures come back as answer text.
type QueryHandler interface {
	Handle(ctx context.Context, q entity.Query) (*entity.Answer, error)
}
