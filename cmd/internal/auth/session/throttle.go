package session

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Throttle counts recent login failures per key (a username or a client IP)
// in a fixed-size LRU.
// Least recently touched keys are evicted first, so memory stays bounded
// no matter how many distinct usernames are tried.
type Throttle struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	failures *lru.Cache[string, []time.Time]
}

// NewThrottle returns nil (throttling disabled) when maxFailures is 0.
func NewThrottle(maxFailures int, window time.Duration, size int) (*Throttle, error) {
	if maxFailures <= 0 {
		return nil, nil
	}
	if window <= 0 {
		return nil, fmt.Errorf("session: throttle window must be positive")
	}
	cache, err := lru.New[string, []time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("session: throttle cache: %w", err)
	}
	return &Throttle{max: maxFailures, window: window, failures: cache}, nil
}

// Begin atomically checks key and, when allowed, counts this attempt as a
// failure straight away, so concurrent attempts cannot all slip in under the
// limit. Call Reset or Cancel once the attempt turns out not to be a failure.
// When blocked, retryAfter is the time until the oldest counted failure ages out.
func (t *Throttle) Begin(key string, now time.Time) (retryAfter time.Duration, ok bool) {
	if t == nil || key == "" {
		return 0, true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.prune(key, now)
	if len(recent) >= t.max {
		retryAfter = recent[len(recent)-t.max].Add(t.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return retryAfter, false
	}
	t.failures.Add(key, append(recent, now))
	return 0, true
}

// Cancel uncounts one attempt recorded by Begin at the same instant.
func (t *Throttle) Cancel(key string, at time.Time) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	times, ok := t.failures.Peek(key)
	if !ok {
		return
	}
	for i := len(times) - 1; i >= 0; i-- {
		if times[i].Equal(at) {
			times = append(times[:i:i], times[i+1:]...)
			break
		}
	}
	if len(times) == 0 {
		t.failures.Remove(key)
		return
	}
	t.failures.Add(key, times)
}

// Reset forgets key, e.g. after a successful login.
func (t *Throttle) Reset(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures.Remove(key)
}

// Len reports how many keys are tracked.
func (t *Throttle) Len() int {
	if t == nil {
		return 0
	}
	return t.failures.Len()
}

func (t *Throttle) prune(key string, now time.Time) []time.Time {
	times, ok := t.failures.Peek(key)
	if !ok {
		return nil
	}
	cut := now.Add(-t.window)
	kept := make([]time.Time, 0, len(times))
	for _, ts := range times {
		if ts.After(cut) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		t.failures.Remove(key)
	}
	return kept
}
