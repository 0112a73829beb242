package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// DropPolicy decides what happens when the queue is at capacity.
type DropPolicy int

const (
	// DropOldest evicts the queue head before inserting the new event.
	DropOldest DropPolicy = iota
	// DropNewest discards the incoming event and keeps the queue as is.
	DropNewest
	// DropNone refuses the insert: Enqueue returns ErrQueueFull and the
	// producer decides whether to retry or propagate. Nothing is lost
	// silently.
	DropNone
)

// ParseDropPolicy parses the config string form.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch s {
	case "oldest":
		return DropOldest, nil
	case "newest":
		return DropNewest, nil
	case "none":
		return DropNone, nil
	default:
		return 0, fmt.Errorf("unknown drop policy %q", s)
	}
}

func (p DropPolicy) String() string {
	switch p {
	case DropOldest:
		return "oldest"
	case DropNewest:
		return "newest"
	default:
		return "none"
	}
}

// Queue is the bounded backpressure queue between the per-endpoint
// producers and the pipeline's consumer. Length never exceeds capacity.
// Safe for concurrent enqueue from multiple producers.
type Queue struct {
	mu       sync.Mutex
	buf      []*types.FilteredEvent
	head     int
	count    int
	capacity int
	policy   DropPolicy

	droppedOldest atomic.Uint64
	droppedNewest atomic.Uint64

	// notify wakes the consumer; capacity 1 so signals coalesce.
	notify chan struct{}
}

// NewQueue creates a queue with the given capacity and drop policy.
func NewQueue(capacity int, policy DropPolicy) *Queue {
	return &Queue{
		buf:      make([]*types.FilteredEvent, capacity),
		capacity: capacity,
		policy:   policy,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue admits an event, applying the drop policy at capacity.
func (q *Queue) Enqueue(event *types.FilteredEvent) error {
	q.mu.Lock()

	if q.count < q.capacity {
		q.buf[(q.head+q.count)%q.capacity] = event
		q.count++
		q.mu.Unlock()
		q.signal()
		return nil
	}

	switch q.policy {
	case DropOldest:
		q.buf[q.head] = nil
		q.head = (q.head + 1) % q.capacity
		q.buf[(q.head+q.count-1)%q.capacity] = event
		q.mu.Unlock()
		q.droppedOldest.Add(1)
		QueueDroppedTotal.WithLabelValues("oldest").Inc()
		q.signal()
		return nil

	case DropNewest:
		q.mu.Unlock()
		q.droppedNewest.Add(1)
		QueueDroppedTotal.WithLabelValues("newest").Inc()
		return nil

	default: // DropNone
		q.mu.Unlock()
		return types.ErrQueueFull
	}
}

// Dequeue removes the queue head.
func (q *Queue) Dequeue() (*types.FilteredEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}

	event := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.count--
	return event, true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Notify returns the consumer wakeup channel.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// DroppedOldest returns events evicted from the head under DropOldest.
func (q *Queue) DroppedOldest() uint64 {
	return q.droppedOldest.Load()
}

// DroppedNewest returns incoming events discarded under DropNewest.
func (q *Queue) DroppedNewest() uint64 {
	return q.droppedNewest.Load()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
