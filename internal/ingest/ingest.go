// Package ingest receives RTP-carried transport streams from a wfdcast
// source over UDP, SRT or QUIC, strips the RTP framing and hands the
// transport stream bytes to a reader per sender.
package ingest

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Transport names the network a stream arrived on.
type Transport string

const (
	TransportUDP  Transport = "udp"
	TransportSRT  Transport = "srt"
	TransportQUIC Transport = "quic"
)

// IngestStats captures connection-level counters for a received stream.
type IngestStats struct {
	Transport     Transport `json:"transport"`
	BytesReceived int64     `json:"bytesReceived"`
	ReadCount     int64     `json:"readCount"`
	RTPPackets    int64     `json:"rtpPackets"`
	Lost          int64     `json:"lost"`
	Reordered     int64     `json:"reordered"`
	Rejected      int64     `json:"rejected"`
	ConnectedAt   int64     `json:"connectedAt"`
	UptimeMs      int64     `json:"uptimeMs"`
	RemoteAddr    string    `json:"remoteAddr"`
}

// Stream is one active sender. Transport stream bytes written to the
// internal pipe by a receiver are read by the consumer handed to the
// registry's callback.
type Stream struct {
	Key       string
	StartedAt time.Time
	Transport Transport
	input     io.ReadCloser
	pw        *io.PipeWriter
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	rtpPackets    atomic.Int64
	lost          atomic.Int64
	reordered     atomic.Int64
	rejected      atomic.Int64
	lastActive    atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead counts one datagram of n bytes.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
	s.lastActive.Store(time.Now().UnixNano())
}

// SetRemoteAddr stores the sender's address for diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

// IngestStats returns a snapshot of the stream counters.
func (s *Stream) IngestStats() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	return IngestStats{
		Transport:     s.Transport,
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		RTPPackets:    s.rtpPackets.Load(),
		Lost:          s.lost.Load(),
		Reordered:     s.reordered.Load(),
		Rejected:      s.rejected.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active streams by key and dispatches new streams to the
// onStream callback.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(key string, input io.Reader, transport Transport)
}

// NewRegistry creates a Registry. The onStream callback is invoked
// asynchronously whenever a new stream is registered.
func NewRegistry(onStream func(key string, input io.Reader, transport Transport)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a stream and returns it with the writer a receiver
// feeds transport stream bytes into.
func (r *Registry) Register(key string, transport Transport) (*Stream, io.Writer) {
	pr, pw := io.Pipe()

	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Transport: transport,
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}
	stream.lastActive.Store(stream.StartedAt.UnixNano())

	r.mu.Lock()
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(key, pr, transport)
	}
	return stream, pw
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// List returns the active streams ordered by key.
func (r *Registry) List() []*Stream {
	r.mu.RLock()
	out := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
