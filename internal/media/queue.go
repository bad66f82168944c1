package media

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by blocking queue operations once Close has
// been called.
var ErrQueueClosed = errors.New("media: queue closed")

// ErrTimeout is returned by NextTimeout when no buffer arrived in time.
var ErrTimeout = errors.New("media: queue wait timed out")

// Queue is a FIFO of buffers shared between goroutines. A queue with a
// positive max size is bounded: pushing into a full bounded queue drops the
// buffer. Blocking operations take a context or a timeout and return early
// when the queue is closed.
type Queue struct {
	mu      sync.Mutex
	items   []*Buffer
	maxSize int
	closed  bool
	// changed is closed and replaced on every state change, waking all
	// goroutines blocked in a wait.
	changed chan struct{}
}

// NewQueue creates a queue holding at most maxSize buffers. Zero or a
// negative value makes the queue unbounded.
func NewQueue(maxSize int) *Queue {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Queue{
		maxSize: maxSize,
		changed: make(chan struct{}),
	}
}

// notify must be called with mu held.
func (q *Queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Lock enters the queue's critical section for a check-then-act sequence
// built from the *Unlocked methods.
func (q *Queue) Lock() {
	q.mu.Lock()
}

// Unlock leaves the critical section and wakes waiters.
func (q *Queue) Unlock() {
	q.notify()
	q.mu.Unlock()
}

// Push appends b. It returns false when the queue is bounded and full or
// already closed; the buffer is dropped in that case.
func (q *Queue) Push(b *Buffer) bool {
	q.Lock()
	defer q.Unlock()
	return q.PushUnlocked(b)
}

// PushUnlocked is Push for callers holding the lock.
func (q *Queue) PushUnlocked(b *Buffer) bool {
	if q.closed || b == nil {
		return false
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return false
	}
	q.items = append(q.items, b)
	return true
}

// Pop removes and returns the front buffer, or nil when the queue is empty.
func (q *Queue) Pop() *Buffer {
	q.Lock()
	defer q.Unlock()
	return q.PopUnlocked()
}

// PopUnlocked is Pop for callers holding the lock.
func (q *Queue) PopUnlocked() *Buffer {
	if len(q.items) == 0 {
		return nil
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return b
}

// Front returns the front buffer without removing it.
func (q *Queue) Front() *Buffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Next blocks until a buffer is available and removes it. It returns
// ErrQueueClosed after Close and ctx.Err() when ctx ends first.
func (q *Queue) Next(ctx context.Context) (*Buffer, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			b := q.PopUnlocked()
			q.notify()
			q.mu.Unlock()
			return b, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// NextTimeout is Next with a deadline. A negative timeout waits until a
// buffer arrives or the queue is closed.
func (q *Queue) NextTimeout(timeout time.Duration) (*Buffer, error) {
	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	b, err := q.Next(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return b, err
}

// WaitForSlots waits until a bounded queue has room. An unbounded queue
// always has room. A negative timeout waits until Close.
func (q *Queue) WaitForSlots(timeout time.Duration) bool {
	if q.maxSize == 0 {
		return true
	}
	return q.waitFor(timeout, func() bool { return len(q.items) < q.maxSize })
}

// WaitToBeFilled waits until the queue holds at least one buffer. A
// negative timeout waits until Close.
func (q *Queue) WaitToBeFilled(timeout time.Duration) bool {
	return q.waitFor(timeout, func() bool { return len(q.items) > 0 })
}

func (q *Queue) waitFor(timeout time.Duration, ready func() bool) bool {
	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		q.mu.Lock()
		if ready() {
			q.mu.Unlock()
			return true
		}
		if q.closed {
			q.mu.Unlock()
			return false
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

// Close marks the queue closed, drops every queued buffer and wakes all
// waiters. It returns the number of dropped buffers.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.items)
	clear(q.items)
	q.items = nil
	q.notify()
	return dropped
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// IsLimited reports whether the queue is bounded.
func (q *Queue) IsLimited() bool { return q.maxSize > 0 }

// MaxSize returns the bound, or 0 for an unbounded queue.
func (q *Queue) MaxSize() int { return q.maxSize }

// IsFull reports whether a bounded queue is at capacity.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize > 0 && len(q.items) >= q.maxSize
}

// IsEmpty reports whether the queue holds no buffers.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// SizeUnlocked is Size for use between Lock and Unlock.
func (q *Queue) SizeUnlocked() int { return len(q.items) }

// Size returns the number of queued buffers.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
