// Package report defines the event sinks the media pipeline reports to and
// the implementations selected at startup: a no-op sink, a slog sink and a
// Prometheus sink.
package report

// EncoderReport receives events from the producer side of the pipeline.
type EncoderReport interface {
	Started()
	Stopped()
	BeganFrame(timestampUs int64)
	FinishedFrame(timestampUs int64)
	ReceivedInputBuffer(timestampUs int64)
}

// PacketizerReport receives an event for every access unit turned into
// transport stream packets.
type PacketizerReport interface {
	PacketizedFrame(timestampUs int64)
}

// SenderReport receives an event for every datagram written to a sink.
type SenderReport interface {
	SentPacket(timestampUs int64, size int)
}

// Sink combines all report interfaces. Implementations must not block.
type Sink interface {
	EncoderReport
	PacketizerReport
	SenderReport
}

// Null discards every event.
type Null struct{}

func (Null) Started()                  {}
func (Null) Stopped()                  {}
func (Null) BeganFrame(int64)          {}
func (Null) FinishedFrame(int64)       {}
func (Null) ReceivedInputBuffer(int64) {}
func (Null) PacketizedFrame(int64)     {}
func (Null) SentPacket(int64, int)     {}
