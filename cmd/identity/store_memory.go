package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store guarded by a single mutex.
// Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	byNorm map[string]Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byNorm: make(map[string]Identity)}
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, id Identity) error {
	const op = "identity.InsertIfAbsent"

	if err := ctx.Err(); err != nil {
		return err
	}
	id, norm, err := prepare(op, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byNorm[norm]; exists {
		return ConflictError{Op: op, Field: "username"}
	}
	s.byNorm[norm] = id
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, username string) (Identity, error) {
	const op = "identity.Lookup"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	norm := NormalizeUsername(username)
	if norm == "" {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	s.mu.Lock()
	id, ok := s.byNorm[norm]
	s.mu.Unlock()

	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return id, nil
}

// Len reports the number of stored identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byNorm)
}
