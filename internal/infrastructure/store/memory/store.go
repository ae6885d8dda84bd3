package memory

import (
	"context"
	"fmt"
	"sync"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/infrastructure/store/threadlock"
)

var _ output.ConversationStore = (*Store)(nil)

// Store keeps transcripts in memory for the lifetime of the process.
type Store struct {
	mu      sync.RWMutex
	threads map[entity.ThreadKey]entity.Transcript
	locks   *threadlock.Locks[entity.ThreadKey]
	closed  bool
}

func New() *Store {
	return &Store{
		threads: make(map[entity.ThreadKey]entity.Transcript),
		locks:   threadlock.New[entity.ThreadKey](),
	}
}

func (s *Store) Lock(ctx context.Context, key entity.ThreadKey) (func(), error) {
	return s.locks.Lock(ctx, key)
}

func (s *Store) GetOrCreate(_ context.Context, key entity.ThreadKey, seed []entity.Message, turns ...entity.Message) (entity.Transcript, bool, error) {
	if err := validate(turns); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, output.ErrStoreClosed
	}

	current := s.threads[key]
	created := len(current) == 0
	next := make(entity.Transcript, 0, len(current)+len(seed)+len(turns))
	next = append(next, current...)
	if created {
		if err := validate(seed); err != nil {
			return nil, false, err
		}
		next = appendCloned(next, seed)
	}
	next = appendCloned(next, turns)
	s.threads[key] = next

	return next.Clone(), created, nil
}

func (s *Store) Get(_ context.Context, key entity.ThreadKey) (entity.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, output.ErrStoreClosed
	}
	return s.threads[key].Clone(), nil
}

func (s *Store) Append(_ context.Context, key entity.ThreadKey, turns ...entity.Message) error {
	if err := validate(turns); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return output.ErrStoreClosed
	}
	if len(s.threads[key]) == 0 {
		return fmt.Errorf("%w: %s", output.ErrThreadNotFound, key)
	}
	s.threads[key] = appendCloned(s.threads[key], turns)
	return nil
}

func (s *Store) IsNew(_ context.Context, key entity.ThreadKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, output.ErrStoreClosed
	}
	return len(s.threads[key]) == 0, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func appendCloned(dst entity.Transcript, turns []entity.Message) entity.Transcript {
	for _, m := range turns {
		dst = append(dst, m.Clone())
	}
	return dst
}

func validate(turns []entity.Message) error {
	for i, m := range turns {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: turn %d has role %q", output.ErrInvalidTurn, i, m.Role)
		}
	}
	return nil
}
