package logs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"logvault/cmd/internal/ids"
)

// MemoryStore keeps entries in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	ids     *ids.Generator
	byOwner map[string][]LogEntry // ordered by ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:     ids.NewGenerator(),
		byOwner: make(map[string][]LogEntry),
	}
}

func (s *MemoryStore) Append(ctx context.Context, in AppendInput) (LogEntry, error) {
	if err := checkAppend(in); err != nil {
		return LogEntry{}, err
	}
	if err := ctx.Err(); err != nil {
		return LogEntry{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The id is drawn under the lock so slice order and id order agree.
	id, err := s.ids.New(now)
	if err != nil {
		return LogEntry{}, fmt.Errorf("logs: new id: %w", err)
	}
	e := LogEntry{
		ID:        id,
		Message:   in.Message,
		Level:     in.Level,
		Owner:     in.Owner,
		CreatedAt: now,
	}
	s.byOwner[in.Owner] = append(s.byOwner[in.Owner], e)
	return e, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, in ListInput) (ListResult, error) {
	if in.Owner == "" {
		return ListResult{}, missing("owner")
	}
	if in.Limit < 0 {
		return ListResult{}, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	limit := clampLimit(in.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.byOwner[in.Owner]
	start := 0
	if in.After != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].ID > in.After })
	}
	rest := all[start:]

	hasMore := false
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
		hasMore = true
	}

	// Copy out so callers never alias the stored slice.
	out := make([]LogEntry, len(rest))
	copy(out, rest)
	return ListResult{Entries: out, HasMore: hasMore}, nil
}

// Len returns the total number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, es := range s.byOwner {
		n += len(es)
	}
	return n
}
