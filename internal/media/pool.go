package media

import "sync"

// Pool recycles released buffers. It implements Delegate, so a buffer
// obtained from Get returns to the pool when its consumer calls Release.
type Pool struct {
	mu      sync.Mutex
	free    []*Buffer
	maxFree int

	allocated int
	reused    int
}

// NewPool creates a pool that keeps at most maxFree idle buffers.
func NewPool(maxFree int) *Pool {
	return &Pool{maxFree: maxFree}
}

// Get returns a zeroed buffer of the given capacity, reusing an idle
// buffer whose allocation is large enough.
func (p *Pool) Get(capacity int, timestamp int64) *Buffer {
	p.mu.Lock()
	for i := len(p.free) - 1; i >= 0; i-- {
		b := p.free[i]
		if cap(b.data) < capacity {
			continue
		}
		p.free = append(p.free[:i], p.free[i+1:]...)
		p.reused++
		p.mu.Unlock()

		b.data = b.data[:capacity]
		clear(b.data)
		b.offset = 0
		b.length = capacity
		b.timestamp = timestamp
		return b
	}
	p.allocated++
	p.mu.Unlock()

	b := NewBuffer(capacity, timestamp)
	b.SetDelegate(p)
	return b
}

// BufferFinished takes b back into the pool. Native buffers and buffers
// arriving while the pool is full are dropped.
func (p *Pool) BufferFinished(b *Buffer) {
	if b.data == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.maxFree {
		return
	}
	for _, f := range p.free {
		if f == b {
			return
		}
	}
	p.free = append(p.free, b)
}

// Idle returns the number of buffers waiting for reuse.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// PoolStats counts allocations served by the pool.
type PoolStats struct {
	Allocated int `json:"allocated"`
	Reused    int `json:"reused"`
	Idle      int `json:"idle"`
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Allocated: p.allocated, Reused: p.reused, Idle: len(p.free)}
}
