package dialogue

import (
	"context"
	"sync"
)

// Storage keeps the current state of every ongoing dialogue.
type Storage[K comparable, D any] interface {
	// Get returns the stored dialogue, found is false if there is none.
	Get(ctx context.Context, key K) (d D, found bool, err error)
	Update(ctx context.Context, key K, d D) error
	// Remove deletes the dialogue, removing a missing one is not an error.
	Remove(ctx context.Context, key K) error
}

// InMemStorage is a Storage which keeps dialogues in memory. The zero value is ready for use.
type InMemStorage[K comparable, D any] struct {
	mu        sync.Mutex
	dialogues map[K]D
}

func NewInMemStorage[K comparable, D any]() *InMemStorage[K, D] {
	return &InMemStorage[K, D]{}
}

func (s *InMemStorage[K, D]) Get(_ context.Context, key K) (D, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, found := s.dialogues[key]
	return d, found, nil
}

func (s *InMemStorage[K, D]) Update(_ context.Context, key K, d D) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialogues == nil {
		s.dialogues = make(map[K]D)
	}
	s.dialogues[key] = d
	return nil
}

func (s *InMemStorage[K, D]) Remove(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogues, key)
	return nil
}

// Len returns the number of ongoing dialogues.
func (s *InMemStorage[K, D]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dialogues)
}
