package task

import (
	"context"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
)

// Queue is an unbounded FIFO of tasks, safe for concurrent use.
//
// Producers Put tasks and then Close the queue. Consumers call Get until it
// reports exhaustion, which happens once the queue is closed and drained.
type Queue struct {
	mu     sync.Mutex
	items  []Task
	head   int
	closed bool

	// ready is closed and replaced on every Put and on Close
	ready chan struct{}

	pollTimeout time.Duration
}

// NewQueue creates an empty queue. pollTimeout bounds each wait of an idle
// consumer before it re-checks the queue state.
func NewQueue(pollTimeout time.Duration) *Queue {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &Queue{
		ready:       make(chan struct{}),
		pollTimeout: pollTimeout,
	}
}

// Put appends a task. It fails with ErrQueueClosed after Close.
func (q *Queue) Put(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.ErrQueueClosed
	}
	q.items = append(q.items, t)
	q.signal()
	return nil
}

// Close marks the end of production. Pending tasks remain available.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

// Len returns the number of tasks not yet dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Get dequeues the next task. ok is false when the queue is closed and
// empty. While the queue is open and empty, Get blocks in slices of the poll
// timeout until a task arrives, the queue is closed, or ctx is done.
func (q *Queue) Get(ctx context.Context) (t Task, ok bool, err error) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			t = q.items[q.head]
			q.items[q.head] = Task{}
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			}
			q.mu.Unlock()
			return t, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Task{}, false, nil
		}
		ready := q.ready
		q.mu.Unlock()

		timer := time.NewTimer(q.pollTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Task{}, false, ctx.Err()
		case <-ready:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// signal wakes every waiting consumer. The caller must hold q.mu.
func (q *Queue) signal() {
	close(q.ready)
	q.ready = make(chan struct{})
}
