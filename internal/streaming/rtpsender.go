// Package streaming moves packetized media to a sink: MediaSender turns
// encoder output into MPEG-TS, RTPSender frames the transport stream as
// RTP and writes it to a network stream.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/rtp"

	"github.com/zsiec/wfdcast/internal/media"
	"github.com/zsiec/wfdcast/internal/network"
	"github.com/zsiec/wfdcast/internal/report"
)

const (
	rtpHeaderSize = 12
	tsPacketSize  = 188

	// PayloadTypeMP2T is the static RTP payload type for MPEG-2 transport
	// streams.
	PayloadTypeMP2T = 33
	// SSRC identifies the source in every RTP header.
	SSRC = 0xdeadbeef

	defaultSenderQueueSize = 512
)

// TransportSender accepts transport stream buffers for delivery.
type TransportSender interface {
	Queue(packets *media.Buffer) bool
	LocalPort() int
}

// RTPSender splits transport stream buffers into RTP packets and writes
// them to a network.Stream from its own goroutine.
type RTPSender struct {
	log    *slog.Logger
	stream network.Stream
	report report.SenderReport
	stats  *report.Statistics
	clock  func() int64

	maxTSPackets int
	queue        *media.Queue

	// seq is guarded by queue's lock.
	seq uint16

	bw bandwidth

	errMu sync.Mutex
	err   error
}

// NewRTPSender creates a sender writing to stream, which must already be
// configured with its MaxUnitSize.
func NewRTPSender(stream network.Stream, opts ...func(*RTPSender)) (*RTPSender, error) {
	s := &RTPSender{
		log:    slog.Default(),
		stream: stream,
		report: report.Null{},
		clock:  media.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queue == nil {
		s.queue = media.NewQueue(defaultSenderQueueSize)
	}
	s.log = s.log.With("component", "rtp-sender")

	s.maxTSPackets = (stream.MaxUnitSize() - rtpHeaderSize) / tsPacketSize
	if s.maxTSPackets < 1 {
		return nil, fmt.Errorf("stream unit size %d cannot carry a TS packet", stream.MaxUnitSize())
	}
	return s, nil
}

// RTPSenderOptLogger sets the logger.
func RTPSenderOptLogger(log *slog.Logger) func(*RTPSender) {
	return func(s *RTPSender) {
		if log != nil {
			s.log = log
		}
	}
}

// RTPSenderOptReport sets the receiver of SentPacket events.
func RTPSenderOptReport(r report.SenderReport) func(*RTPSender) {
	return func(s *RTPSender) {
		if r != nil {
			s.report = r
		}
	}
}

// RTPSenderOptStatistics records queue and send delays into stats.
func RTPSenderOptStatistics(stats *report.Statistics) func(*RTPSender) {
	return func(s *RTPSender) {
		s.stats = stats
	}
}

// RTPSenderOptQueueSize bounds the number of RTP packets waiting to be
// sent. Zero makes the queue unbounded.
func RTPSenderOptQueueSize(n int) func(*RTPSender) {
	return func(s *RTPSender) {
		s.queue = media.NewQueue(n)
	}
}

// RTPSenderOptInitialSequence sets the first RTP sequence number.
func RTPSenderOptInitialSequence(seq uint16) func(*RTPSender) {
	return func(s *RTPSender) {
		s.seq = seq
	}
}

// RTPSenderOptClock replaces the microsecond clock RTP timestamps are
// derived from.
func RTPSenderOptClock(clock func() int64) func(*RTPSender) {
	return func(s *RTPSender) {
		s.clock = clock
	}
}

// Name identifies the sender's executor.
func (s *RTPSender) Name() string { return "RTPSender" }

// LocalPort returns the stream's bound local port.
func (s *RTPSender) LocalPort() int { return s.stream.LocalPort() }

// TSPacketsPerDatagram returns how many TS packets go into one RTP packet.
func (s *RTPSender) TSPacketsPerDatagram() int { return s.maxTSPackets }

// Pending returns the number of RTP packets waiting to be written.
func (s *RTPSender) Pending() int { return s.queue.Size() }

// Queue splits packets into RTP packets and enqueues them. It never
// blocks. It returns false when the length is not a multiple of 188, when
// the queue lacks room for the whole buffer or after Close.
func (s *RTPSender) Queue(packets *media.Buffer) bool {
	data := packets.Data()
	if len(data) == 0 || len(data)%tsPacketSize != 0 {
		s.log.Warn("rejecting buffer with invalid length", "length", len(data))
		return false
	}

	n := (len(data)/tsPacketSize + s.maxTSPackets - 1) / s.maxTSPackets
	now := s.clock()

	s.queue.Lock()
	defer s.queue.Unlock()

	if s.queue.IsLimited() && s.queue.SizeUnlocked()+n > s.queue.MaxSize() {
		s.log.Debug("queue full, dropping buffer", "rtp_packets", n, "queued", s.queue.SizeUnlocked())
		return false
	}

	// RTP timestamps use the 90 kHz clock and wrap at 32 bits.
	ts := uint32(now * 9 / 100)
	for offset := 0; offset < len(data); {
		chunk := min(len(data)-offset, s.maxTSPackets*tsPacketSize)
		last := offset+chunk == len(data)

		h := rtp.Header{
			Version:        2,
			Marker:         last,
			PayloadType:    PayloadTypeMP2T,
			SequenceNumber: s.seq,
			Timestamp:      ts,
			SSRC:           SSRC,
		}
		s.seq++

		pkt := media.NewBuffer(rtpHeaderSize+chunk, packets.Timestamp())
		if _, err := h.MarshalTo(pkt.Data()); err != nil {
			s.log.Error("marshal RTP header", "error", err)
			return false
		}
		copy(pkt.Data()[rtpHeaderSize:], data[offset:offset+chunk])
		if !s.queue.PushUnlocked(pkt) {
			// Closed; room was checked above.
			return false
		}
		offset += chunk
	}

	if s.stats != nil {
		s.stats.RecordRTPBufferQueued(now - packets.Timestamp())
	}
	return true
}

// Execute waits for queued packets and writes all of them. It returns
// false when the stream fails or the sender is closed. A stream that is
// not ready while ctx is live counts as a failure.
func (s *RTPSender) Execute(ctx context.Context) bool {
	first, err := s.queue.Next(ctx)
	if err != nil {
		return false
	}
	if !s.stream.WaitUntilReady(ctx) {
		if ctx.Err() == nil {
			s.fail(fmt.Errorf("stream not ready: %w", network.ErrNotConnected))
		}
		return false
	}

	for pkt := first; pkt != nil; pkt = s.queue.Pop() {
		if e := s.stream.Write(pkt.Data(), pkt.Timestamp()); e != network.ErrorNone {
			s.fail(fmt.Errorf("write RTP packet: %w", e.Err()))
			return false
		}
		s.report.SentPacket(pkt.Timestamp(), pkt.Length())
		s.record(pkt)
	}
	return true
}

func (s *RTPSender) record(pkt *media.Buffer) {
	if s.stats == nil {
		return
	}
	now := s.clock()
	s.stats.RecordRTPBufferSent(now - pkt.Timestamp())
	if mbit, ok := s.bw.add(now, pkt.Length()); ok {
		s.stats.RecordRTPBandwidth(mbit)
	}
}

func (s *RTPSender) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	if errors.Is(err, network.ErrRemoteClosed) {
		s.log.Info("sink closed the connection")
	} else {
		s.log.Error("sender stopped", "error", err)
	}
}

// Err returns the write error that stopped the sender, if any.
func (s *RTPSender) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Run calls Execute until ctx ends or the sender stops, and returns Err.
func (s *RTPSender) Run(ctx context.Context) error {
	for ctx.Err() == nil && s.Execute(ctx) {
	}
	return s.Err()
}

// Close drops every queued packet and wakes the worker.
func (s *RTPSender) Close() {
	if n := s.queue.Close(); n > 0 {
		s.log.Debug("dropped queued packets", "count", n)
	}
}

// bandwidth sums bytes over one-second windows.
type bandwidth struct {
	start int64
	bytes int64
}

func (b *bandwidth) add(nowUs int64, n int) (mbit int64, done bool) {
	if b.start == 0 {
		b.start = nowUs
	}
	b.bytes += int64(n)
	if nowUs-b.start < 1_000_000 {
		return 0, false
	}
	mbit = b.bytes * 8 * 1_000_000 / (nowUs - b.start) / 1_000_000
	b.start, b.bytes = nowUs, 0
	return mbit, true
}
