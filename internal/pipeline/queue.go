package pipeline

import "context"

// Queue is the bounded handoff between two stages. Push blocks when the
// consumer is saturated (cooperative backpressure, never a busy wait) and
// unblocks on context cancellation.
type Queue struct {
	ch chan Frame
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Frame, capacity)}
}

func (q *Queue) Push(ctx context.Context, f Frame) error {
	select {
	case q.ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Pop(ctx context.Context) (Frame, error) {
	select {
	case f := <-q.ch:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.ch) }
