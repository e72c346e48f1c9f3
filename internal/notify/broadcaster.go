package notify

import (
	"context"
	"sync"
	"time"
)

// Mutation identifies the kind of the most recent write against the store.
type Mutation int

const (
	// MutationNone is the initial state before any write has been announced.
	// It must never be interpreted as "something changed".
	MutationNone Mutation = iota
	// MutationCreated marks a completed create.
	MutationCreated
	// MutationEdited marks a completed edit.
	MutationEdited
	// MutationDeleted marks a completed delete.
	MutationDeleted
)

// String renders the mutation kind for logs and wire events.
func (m Mutation) String() string {
	switch m {
	case MutationCreated:
		return "created"
	case MutationEdited:
		return "edited"
	case MutationDeleted:
		return "deleted"
	default:
		return "none"
	}
}

// Event is the fire-and-forget payload fanned out to subscribers. It carries
// no affected id: consumers re-query the store rather than patching in place.
type Event struct {
	Kind        Mutation
	AnnouncedAt time.Time
}

type subscriber struct {
	id     int64
	stream chan Event
}

// Broadcaster is the process-wide mutation signal. Exactly one mutation kind
// is current after an announce; announcing replaces the previous kind.
type Broadcaster struct {
	mu          sync.RWMutex
	latest      Event
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

// NewBroadcaster constructs a broadcaster with no announced mutation.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// NewBroadcasterWithClock constructs a broadcaster using the supplied clock.
func NewBroadcasterWithClock(clock func() time.Time) *Broadcaster {
	b := NewBroadcaster()
	if clock != nil {
		b.clock = clock
	}
	return b
}

// AnnounceCreated records a completed create and notifies subscribers.
func (b *Broadcaster) AnnounceCreated() {
	b.announce(MutationCreated)
}

// AnnounceEdited records a completed edit and notifies subscribers.
func (b *Broadcaster) AnnounceEdited() {
	b.announce(MutationEdited)
}

// AnnounceDeleted records a completed delete and notifies subscribers.
func (b *Broadcaster) AnnounceDeleted() {
	b.announce(MutationDeleted)
}

// Latest returns the most recently announced event. Before the first announce
// the kind is MutationNone.
func (b *Broadcaster) Latest() Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// Subscribe registers a listener for mutation events. The stream is closed
// over when the context is done; the returned cleanup is idempotent and may
// be called earlier.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := &subscriber{
		stream: make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.subscribers, sub.id)
		b.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (b *Broadcaster) announce(kind Mutation) {
	event := Event{Kind: kind, AnnouncedAt: b.clock().UTC()}

	b.mu.Lock()
	b.latest = event
	copies := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		copies = append(copies, sub)
	}
	b.mu.Unlock()

	// Slow subscribers drop events rather than block the writer; a dropped
	// event is safe because consumers refetch the full first page anyway.
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}
