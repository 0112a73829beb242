package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dexpulse/dexpulse/pkg/types"
)

func makeFilteredEvent(id int) *types.FilteredEvent {
	return &types.FilteredEvent{
		PoolEvent: &types.PoolEvent{
			BlockNumber: uint64(id),
		},
	}
}

func TestParseDropPolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    DropPolicy
		wantErr bool
	}{
		{input: "oldest", want: DropOldest},
		{input: "newest", want: DropNewest},
		{input: "none", want: DropNone},
		{input: "block", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("policy_%q", tt.input), func(t *testing.T) {
			got, err := ParseDropPolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDropPolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseDropPolicy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue(10, DropNone)

	for i := 0; i < 5; i++ {
		err := q.Enqueue(makeFilteredEvent(i))
		if err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		event, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() empty at %d", i)
		}
		if event.BlockNumber != uint64(i) {
			t.Errorf("Dequeue() order: got %d, want %d", event.BlockNumber, i)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on empty queue returned an event")
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue(3, DropOldest)

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(makeFilteredEvent(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	// Over capacity: event 0 is evicted, event 3 admitted.
	if err := q.Enqueue(makeFilteredEvent(3)); err != nil {
		t.Fatalf("Enqueue(3) error = %v", err)
	}

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	if q.DroppedOldest() != 1 {
		t.Errorf("DroppedOldest() = %d, want 1", q.DroppedOldest())
	}

	// Retained events are 1, 2, 3 in order.
	for _, want := range []uint64{1, 2, 3} {
		event, ok := q.Dequeue()
		if !ok {
			t.Fatal("Dequeue() empty")
		}
		if event.BlockNumber != want {
			t.Errorf("Dequeue() = %d, want %d", event.BlockNumber, want)
		}
	}
}

func TestQueue_DropNewest(t *testing.T) {
	q := NewQueue(3, DropNewest)

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(makeFilteredEvent(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	// Over capacity: the incoming event is discarded.
	if err := q.Enqueue(makeFilteredEvent(3)); err != nil {
		t.Fatalf("Enqueue(3) error = %v", err)
	}

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	if q.DroppedNewest() != 1 {
		t.Errorf("DroppedNewest() = %d, want 1", q.DroppedNewest())
	}

	// Retained events are the original 0, 1, 2.
	for _, want := range []uint64{0, 1, 2} {
		event, ok := q.Dequeue()
		if !ok {
			t.Fatal("Dequeue() empty")
		}
		if event.BlockNumber != want {
			t.Errorf("Dequeue() = %d, want %d", event.BlockNumber, want)
		}
	}
}

func TestQueue_DropNoneReturnsError(t *testing.T) {
	q := NewQueue(2, DropNone)

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(makeFilteredEvent(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	err := q.Enqueue(makeFilteredEvent(2))
	if !errors.Is(err, types.ErrQueueFull) {
		t.Errorf("Enqueue() error = %v, want ErrQueueFull", err)
	}

	// The queue is intact: same depth, same contents.
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	event, _ := q.Dequeue()
	if event.BlockNumber != 0 {
		t.Errorf("head after rejected enqueue = %d, want 0", event.BlockNumber)
	}
}

func TestQueue_LengthNeverExceedsCapacity(t *testing.T) {
	policies := []DropPolicy{DropOldest, DropNewest, DropNone}

	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			q := NewQueue(4, policy)

			for i := 0; i < 20; i++ {
				_ = q.Enqueue(makeFilteredEvent(i))
				if q.Len() > 4 {
					t.Fatalf("Len() = %d exceeds capacity 4 after %d enqueues", q.Len(), i+1)
				}
			}
		})
	}
}

func TestQueue_NotifySignalsCoalesce(t *testing.T) {
	q := NewQueue(10, DropNone)

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(makeFilteredEvent(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	// Five enqueues coalesce into at most one pending signal.
	select {
	case <-q.Notify():
	default:
		t.Fatal("expected a pending notify signal")
	}

	select {
	case <-q.Notify():
		t.Error("expected signals to coalesce into one")
	default:
	}
}

func TestQueue_WrapAround(t *testing.T) {
	q := NewQueue(3, DropNone)

	// Cycle through more events than the capacity to exercise ring
	// index wrapping.
	next := 0
	for cycle := 0; cycle < 4; cycle++ {
		for i := 0; i < 3; i++ {
			if err := q.Enqueue(makeFilteredEvent(next)); err != nil {
				t.Fatalf("Enqueue(%d) error = %v", next, err)
			}
			next++
		}
		for i := 0; i < 3; i++ {
			event, ok := q.Dequeue()
			if !ok {
				t.Fatal("Dequeue() empty")
			}
			want := uint64(cycle*3 + i)
			if event.BlockNumber != want {
				t.Errorf("Dequeue() = %d, want %d", event.BlockNumber, want)
			}
		}
	}
}
