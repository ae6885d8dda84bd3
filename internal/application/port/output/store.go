package output

import (
	"context"
	"errors"

	"query-assistant/internal/domain/entity"
)

// ConversationStore maps thread keys to transcripts.
//
// Lock serializes loop executions on one thread; the returned func releases it.
// GetOrCreate seeds a new thread and appends turns in one atomic step and reports
// whether the thread was created. Append is all-or-nothing.
type ConversationStore interface {
	Lock(ctx context.Context, key entity.ThreadKey) (func(), error)
	GetOrCreate(ctx context.Context, key entity.ThreadKey, seed []entity.Message, turns ...entity.Message) (entity.Transcript, bool, error)
	Get(ctx context.Context, key entity.ThreadKey) (entity.Transcript, error)
	Append(ctx context.Context, key entity.ThreadKey, turns ...entity.Message) error
	IsNew(ctx context.Context, key entity.ThreadKey) (bool, error)
	Close() error
}

var (
	ErrStoreClosed    = errors.New("conversation store closed")
	ErrThreadNotFound = errors.New("thread not found")
	ErrInvalidTurn    = errors.New("invalid turn")
)
