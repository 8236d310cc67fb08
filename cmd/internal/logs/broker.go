package logs

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultSubscriberQueue = 64

// Subscriber receives the new entries of one owner.
//
// C is never closed by the broker, so a Publish racing with teardown cannot
// panic. Done is closed when the subscriber is removed, either by Close or
// because it fell behind.
type Subscriber struct {
	Owner string
	C     <-chan LogEntry

	id      uint64
	send    chan LogEntry
	done    chan struct{}
	once    sync.Once
	dropped atomic.Bool
}

func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Dropped reports whether the broker removed this subscriber for being slow.
func (s *Subscriber) Dropped() bool { return s.dropped.Load() }

func (s *Subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Broker fans out freshly created entries to live subscribers of the same owner.
// Publish never blocks: a subscriber whose queue is full is dropped.
type Broker struct {
	log   *slog.Logger
	queue int

	nextID atomic.Uint64

	mu     sync.RWMutex
	owners map[string]map[uint64]*Subscriber

	// onDrop is called once per dropped subscriber (metrics).
	onDrop func()
}

// NewBroker constructs a Broker whose subscribers buffer up to queue entries.
func NewBroker(log *slog.Logger, queue int) *Broker {
	if log == nil {
		log = slog.Default()
	}
	if queue <= 0 {
		queue = defaultSubscriberQueue
	}
	return &Broker{
		log:    log,
		queue:  queue,
		owners: make(map[string]map[uint64]*Subscriber),
		onDrop: func() {},
	}
}

// Subscribe registers a subscriber for owner. Callers must Unsubscribe.
func (b *Broker) Subscribe(owner string) *Subscriber {
	ch := make(chan LogEntry, b.queue)
	sub := &Subscriber{
		Owner: owner,
		C:     ch,
		id:    b.nextID.Add(1),
		send:  ch,
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	subs := b.owners[owner]
	if subs == nil {
		subs = make(map[uint64]*Subscriber)
		b.owners[owner] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and signals Done. Safe to call more than once.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.remove(sub)
	sub.stop()
}

// Publish delivers e to every subscriber of e.Owner.
func (b *Broker) Publish(e LogEntry) {
	var slow []*Subscriber

	b.mu.RLock()
	for _, sub := range b.owners[e.Owner] {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.send <- e:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		if sub.dropped.CompareAndSwap(false, true) {
			b.log.Warn("logs.stream.dropped", "owner", sub.Owner, "subscriber", sub.id)
			b.onDrop()
		}
		b.Unsubscribe(sub)
	}
}

// Subscribers returns the number of live subscribers for owner.
func (b *Broker) Subscribers(owner string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.owners[owner])
}

func (b *Broker) remove(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.owners[sub.Owner]
	if subs == nil {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.owners, sub.Owner)
	}
}

// SetDropHook installs fn to run once per dropped subscriber. Call before use.
func (b *Broker) SetDropHook(fn func()) {
	if fn != nil {
		b.onDrop = fn
	}
}
