package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStore_InsertAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	if err := s.InsertIfAbsent(ctx, Identity{Username: "  Alice ", PasswordHash: "$argon2id$x", CreatedAt: now}); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	got, err := s.Lookup(ctx, "ALICE")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Username != "Alice" || got.PasswordHash != "$argon2id$x" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestMemoryStore_ConflictCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InsertIfAbsent(ctx, Identity{Username: "navid", PasswordHash: "h1"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := s.InsertIfAbsent(ctx, Identity{Username: "NaViD", PasswordHash: "h2"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var ce ConflictError
	if !errors.As(err, &ce) || ce.Field != "username" {
		t.Fatalf("expected ConflictError{Field: username}, got %#v", err)
	}

	// Original record is untouched.
	got, err := s.Lookup(ctx, "navid")
	if err != nil || got.PasswordHash != "h1" {
		t.Fatalf("record overwritten: %+v err=%v", got, err)
	}
}

func TestMemoryStore_LookupMissing(t *testing.T) {
	s := NewMemoryStore()

	for _, name := range []string{"ghost", "", "   "} {
		_, err := s.Lookup(context.Background(), name)
		if !IsNotFound(err) {
			t.Fatalf("Lookup(%q): expected not found, got %v", name, err)
		}
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []Identity{
		{Username: "", PasswordHash: "h"},
		{Username: "  ", PasswordHash: "h"},
		{Username: "bob", PasswordHash: ""},
	}
	for _, in := range cases {
		if err := s.InsertIfAbsent(ctx, in); !IsInvalidInput(err) {
			t.Fatalf("InsertIfAbsent(%+v): expected invalid input, got %v", in, err)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("invalid inserts were stored")
	}
}

func TestMemoryStore_ConcurrentSameUsername(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 32
	var (
		ok        atomic.Int32
		conflicts atomic.Int32
		wg        sync.WaitGroup
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.InsertIfAbsent(ctx, Identity{Username: "racer", PasswordHash: "h"})
			switch {
			case err == nil:
				ok.Add(1)
			case IsConflict(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 || conflicts.Load() != n-1 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and %d", ok.Load(), conflicts.Load(), n-1)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.InsertIfAbsent(ctx, Identity{Username: "x", PasswordHash: "h"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
