// Package ids provides sortable identifiers (ULID).
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out strictly increasing ULIDs.
// Within one millisecond the random part is incremented; if the clock steps
// backwards the previous timestamp is reused so order never regresses.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	lastMS  uint64
}

func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *Generator) New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(now)
	if ms < g.lastMS {
		ms = g.lastMS
	}

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", err
	}
	g.lastMS = ms
	return id.String(), nil
}

// Valid reports whether s is a canonical 26-char ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
