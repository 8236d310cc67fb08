package password

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Hasher runs hash and verify work with bounded concurrency.
// Callers block on ctx while all slots are busy.
type Hasher struct {
	cfg Config
	sem *semaphore.Weighted
}

func NewHasher(cfg Config) *Hasher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Hasher{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(workers)),
	}
}

// Config returns the configuration the hasher was built with.
func (h *Hasher) Config() Config { return h.cfg }

func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.cfg.Validate(password); err != nil {
		return "", err
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("password: acquire worker: %w", err)
	}
	defer h.sem.Release(1)

	return h.cfg.Hash(password)
}

func (h *Hasher) Verify(ctx context.Context, encodedHash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("password: acquire worker: %w", err)
	}
	defer h.sem.Release(1)

	return h.cfg.Verify(encodedHash, password)
}
