// Package updatequeue provides a queue fed and drained through channels whose
// sender never blocks on a slow receiver.
package updatequeue

import "sync/atomic"

// Queue buffers items between In and Out. Up to limit items are held; beyond
// that the oldest item is discarded to make room and counted in Dropped.
// A limit of 0 means no limit.
type Queue[T any] struct {
	in      chan T
	out     chan T
	queue   []T
	limit   int
	dropped atomic.Int64
}

// New creates a Queue holding at most limit items and starts its forwarding goroutine.
func New[T any](limit int) *Queue[T] {
	q := &Queue[T]{
		in:    make(chan T),
		out:   make(chan T),
		queue: make([]T, 0),
		limit: limit,
	}
	go q.run()
	return q
}

func (q *Queue[T]) push(val T) {
	if q.limit > 0 && len(q.queue) >= q.limit {
		q.queue = q.queue[1:]
		q.dropped.Add(1)
	}
	q.queue = append(q.queue, val)
}

func (q *Queue[T]) run() {
	for {
		if len(q.queue) == 0 {
			val, ok := <-q.in
			if !ok {
				close(q.out)
				return
			}
			q.push(val)
			continue
		}

		select {
		case q.out <- q.queue[0]:
			q.queue = q.queue[1:]
		case val, ok := <-q.in:
			if !ok {
				// Input closed: hand over what is left, then close the output.
				for _, item := range q.queue {
					q.out <- item
				}
				close(q.out)
				return
			}
			q.push(val)
		}
	}
}

// In returns the channel for sending items. Close it to shut the queue down.
func (q *Queue[T]) In() chan<- T {
	return q.in
}

// Out returns the channel for receiving items. It is closed after In is closed
// and all queued items have been received.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Dropped returns how many items were discarded because the queue was full.
func (q *Queue[T]) Dropped() int64 {
	return q.dropped.Load()
}
