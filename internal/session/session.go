// Package session ties one sink's transport, RTP sender and media sender
// together and tracks the active sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/wfdcast/internal/executor"
	"github.com/zsiec/wfdcast/internal/mpegts"
	"github.com/zsiec/wfdcast/internal/network"
	"github.com/zsiec/wfdcast/internal/report"
	"github.com/zsiec/wfdcast/internal/streaming"
	"github.com/zsiec/wfdcast/internal/wfd"
)

// Transport names.
const (
	TransportUDP  = "udp"
	TransportSRT  = "srt"
	TransportQUIC = "quic"
)

var ErrUnknownTransport = errors.New("session: unknown transport")

// Options configure a session.
type Options struct {
	Transport string
	// SRTName becomes the SRT stream id suffix.
	SRTName string
	// QUICFingerprint pins the sink certificate. Zero accepts any.
	QUICFingerprint [32]byte
	// MaxUnitSize caps datagrams below the transport limit when non-zero.
	MaxUnitSize int
	QueueSize   int
	PSIInterval time.Duration
	Encoder     wfd.EncoderConfig
	Report      report.Sink
	Stats       *report.Statistics
	Log         *slog.Logger
}

// Session streams to one sink.
type Session struct {
	Key       string
	Transport string
	StartedAt time.Time

	log    *slog.Logger
	stream network.Stream
	sender *streaming.RTPSender
	media  *streaming.MediaSender

	closeOnce sync.Once
	done      chan struct{}
}

// Info is a snapshot of a session for logs and status output.
type Info struct {
	Key        string `json:"key"`
	Transport  string `json:"transport"`
	LocalPort  int    `json:"localPort"`
	UptimeMs   int64  `json:"uptimeMs"`
	PendingRTP int    `json:"pendingRtp"`
	PendingAUs int    `json:"pendingAccessUnits"`
}

// NewStream creates the transport named by opts.Transport.
func NewStream(opts Options) (network.Stream, error) {
	var s network.Stream
	switch opts.Transport {
	case TransportUDP, "":
		s = network.NewUDPStream(opts.Log)
	case TransportSRT:
		s = network.NewSRTStream(opts.SRTName, opts.Log)
	case TransportQUIC:
		s = network.NewQUICStream(opts.QUICFingerprint, opts.Log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, opts.Transport)
	}
	if opts.MaxUnitSize > 0 && opts.MaxUnitSize < s.MaxUnitSize() {
		s = &cappedStream{Stream: s, max: opts.MaxUnitSize}
	}
	return s, nil
}

// cappedStream lowers the unit size of the wrapped stream.
type cappedStream struct {
	network.Stream
	max int
}

func (c *cappedStream) MaxUnitSize() int { return c.max }

// Dial connects to the sink at host:port and builds a session on the new
// stream.
func Dial(ctx context.Context, host string, port int, opts Options) (*Session, error) {
	stream, err := NewStream(opts)
	if err != nil {
		return nil, err
	}
	if err := stream.Connect(ctx, host, port); err != nil {
		stream.Close()
		return nil, fmt.Errorf("connect %s %s:%d: %w", opts.Transport, host, port, err)
	}
	s, err := New(fmt.Sprintf("%s:%d", host, port), stream, opts)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return s, nil
}

// New builds a session on a connected stream. The session owns stream
// and closes it in Close.
func New(key string, stream network.Stream, opts Options) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	rep := opts.Report
	if rep == nil {
		rep = report.Null{}
	}
	transport := opts.Transport
	if transport == "" {
		transport = TransportUDP
	}

	sender, err := streaming.NewRTPSender(stream,
		streaming.RTPSenderOptLogger(log.With("session", key)),
		streaming.RTPSenderOptReport(rep),
		streaming.RTPSenderOptStatistics(opts.Stats),
		streaming.RTPSenderOptQueueSize(opts.QueueSize),
	)
	if err != nil {
		return nil, err
	}

	packetizer := mpegts.NewPacketizer(
		mpegts.PacketizerOptLogger(log.With("session", key)),
		mpegts.PacketizerOptReport(rep),
	)
	mediaOpts := []func(*streaming.MediaSender){
		streaming.MediaSenderOptLogger(log.With("session", key)),
		streaming.MediaSenderOptStatistics(opts.Stats),
	}
	if opts.PSIInterval > 0 {
		mediaOpts = append(mediaOpts, streaming.MediaSenderOptPSIInterval(opts.PSIInterval))
	}
	media := streaming.NewMediaSender(packetizer, sender, mediaOpts...)
	if err := media.Configure(opts.Encoder); err != nil {
		return nil, err
	}

	return &Session{
		Key:       key,
		Transport: transport,
		StartedAt: time.Now(),
		log:       log.With("component", "session", "key", key),
		stream:    stream,
		sender:    sender,
		media:     media,
		done:      make(chan struct{}),
	}, nil
}

// Media returns the sink-facing media sender; the source delivers access
// units to it.
func (s *Session) Media() *streaming.MediaSender { return s.media }

// LocalPort returns the local RTP port.
func (s *Session) LocalPort() int { return s.media.LocalRTPPort() }

// Run drives the media and RTP senders until ctx ends, the session is
// closed or the transport fails.
func (s *Session) Run(ctx context.Context) error {
	pool := executor.NewPool(s.log)
	pool.Add(s.media)
	pool.Add(s.sender)

	s.log.Info("session started", "transport", s.Transport, "local_port", s.LocalPort())
	err := pool.Run(ctx)
	s.Close()
	if err != nil {
		s.log.Warn("session ended", "error", err)
	} else {
		s.log.Info("session ended")
	}
	return err
}

// Close stops both senders and closes the transport. It is safe to call
// more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.media.Close()
		s.sender.Close()
		if err := s.stream.Close(); err != nil {
			s.log.Debug("close stream", "error", err)
		}
		close(s.done)
	})
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	return Info{
		Key:        s.Key,
		Transport:  s.Transport,
		LocalPort:  s.LocalPort(),
		UptimeMs:   time.Since(s.StartedAt).Milliseconds(),
		PendingRTP: s.sender.Pending(),
		PendingAUs: s.media.Pending(),
	}
}
