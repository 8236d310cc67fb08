package logs

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBroker_SlowSubscriberIsDropped(t *testing.T) {
	b := NewBroker(discardLogger(), 2)
	var drops atomic.Int32
	b.SetDropHook(func() { drops.Add(1) })

	slow := b.Subscribe("alice")
	defer b.Unsubscribe(slow)

	for i := 0; i < 3; i++ {
		b.Publish(LogEntry{ID: string(rune('a' + i)), Owner: "alice"})
	}

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatalf("slow subscriber was not dropped")
	}
	if !slow.Dropped() {
		t.Fatalf("Dropped() should report true")
	}
	if drops.Load() != 1 {
		t.Fatalf("expected one drop, got %d", drops.Load())
	}
	if n := b.Subscribers("alice"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	// Buffered entries stay readable.
	if got := len(slow.C); got != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", got)
	}
}

func TestBroker_UnsubscribeIdempotent(t *testing.T) {
	b := NewBroker(discardLogger(), 1)
	sub := b.Subscribe("alice")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	if sub.Dropped() {
		t.Fatalf("explicit unsubscribe is not a drop")
	}
	// Publishing after unsubscribe must not block or panic.
	b.Publish(LogEntry{Owner: "alice"})
}

func TestBroker_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroker(discardLogger(), 8)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe("alice")
			time.Sleep(time.Millisecond)
			b.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(LogEntry{Owner: "alice"})
			}
		}()
	}
	wg.Wait()

	if n := b.Subscribers("alice"); n != 0 {
		t.Fatalf("expected all subscribers gone, got %d", n)
	}
}
