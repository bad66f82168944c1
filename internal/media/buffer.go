// Package media holds the buffer types handed between the encoder, the
// MPEG-TS packetizer and the RTP sender, plus the bounded queue that
// connects those stages.
package media

// Delegate is notified when a buffer's consumer is finished with it.
// A Pool is the usual delegate; it decides whether the buffer is recycled.
type Delegate interface {
	BufferFinished(b *Buffer)
}

// Buffer is a byte region with a visible window, a timestamp in
// microseconds and an optional opaque native handle. A buffer either owns
// bytes or wraps a native handle, never both.
type Buffer struct {
	data      []byte
	offset    int
	length    int
	timestamp int64
	native    any
	delegate  Delegate
}

// NewBuffer allocates a zeroed buffer of capacity bytes whose visible
// window covers the whole allocation.
func NewBuffer(capacity int, timestamp int64) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		data:      make([]byte, capacity),
		length:    capacity,
		timestamp: timestamp,
	}
}

// NewBufferFrom copies data into a new buffer. The caller keeps ownership
// of data.
func NewBufferFrom(data []byte) *Buffer {
	b := &Buffer{
		data:   make([]byte, len(data)),
		length: len(data),
	}
	copy(b.data, data)
	return b
}

// NewNativeBuffer wraps an external resource such as a hardware surface.
// Byte access on the result yields nil and its capacity and length are 0.
func NewNativeBuffer(handle any) *Buffer {
	return &Buffer{native: handle}
}

// Data returns the visible window of the buffer, or nil for native buffers.
func (b *Buffer) Data() []byte {
	if b.data == nil {
		return nil
	}
	return b.data[b.offset : b.offset+b.length]
}

// Capacity returns the size of the owned allocation.
func (b *Buffer) Capacity() int { return len(b.data) }

// Length returns the size of the visible window.
func (b *Buffer) Length() int { return b.length }

// Offset returns the start of the visible window within the allocation.
func (b *Buffer) Offset() int { return b.offset }

// Timestamp returns the presentation time in microseconds.
func (b *Buffer) Timestamp() int64 { return b.timestamp }

// SetTimestamp sets the presentation time in microseconds.
func (b *Buffer) SetTimestamp(ts int64) { b.timestamp = ts }

// Native returns the wrapped native handle, if any.
func (b *Buffer) Native() any { return b.native }

// IsValid reports whether the buffer owns bytes or wraps a native handle.
func (b *Buffer) IsValid() bool {
	return b.data != nil || b.native != nil
}

// SetRange narrows the visible window to [offset, offset+length). Windows
// that do not fit inside the allocation are ignored.
func (b *Buffer) SetRange(offset, length int) {
	capacity := len(b.data)
	if offset < 0 || length < 0 || offset > capacity || length > capacity || offset+length > capacity {
		return
	}
	b.offset = offset
	b.length = length
}

// SetDelegate registers the receiver of Release notifications. A nil
// delegate detaches the buffer.
func (b *Buffer) SetDelegate(d Delegate) {
	b.delegate = d
}

// Release tells the delegate the buffer is no longer used. Without a
// delegate it does nothing and the buffer is left to the garbage collector.
func (b *Buffer) Release() {
	if d := b.delegate; d != nil {
		d.BufferFinished(b)
	}
}
