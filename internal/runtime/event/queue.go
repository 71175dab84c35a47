package event

import (
	"context"
	"fmt"
)

// Queue is a bounded multi-producer multi-consumer hand-off between stages.
// Puts from one goroutine are taken in order.
type Queue struct {
	name string
	ch   chan *Instance
}

// NewQueue creates a queue holding up to capacity events. A non-positive
// capacity is raised to one.
func NewQueue(name string, capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{name: name, ch: make(chan *Instance, capacity)}
}

func (q *Queue) Name() string { return q.name }
func (q *Queue) Len() int     { return len(q.ch) }
func (q *Queue) Cap() int     { return cap(q.ch) }

// Put waits for room in the queue. It fails with an error wrapping ctx.Err()
// when ctx is done before the event could be stored.
func (q *Queue) Put(ctx context.Context, ev *Instance) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queue %s: put: %w", q.name, err)
	}
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s: put: %w", q.name, ctx.Err())
	}
}

// Offer stores ev if there is room and reports whether it did.
func (q *Queue) Offer(ev *Instance) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

// Take waits for an event. It fails with an error wrapping ctx.Err() when ctx
// is done first.
func (q *Queue) Take(ctx context.Context) (*Instance, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("queue %s: take: %w", q.name, ctx.Err())
	}
}

// Poll returns the next event without waiting.
func (q *Queue) Poll() (*Instance, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return nil, false
	}
}
