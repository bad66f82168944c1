package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	srtgo "github.com/zsiec/srtgo"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// SRTServer accepts SRT callers whose stream id starts with "wfd/" and
// reads one RTP packet per SRT message.
type SRTServer struct {
	log      *slog.Logger
	addr     string
	registry *Registry
}

// NewSRTServer creates an SRT server that listens on addr. If log is nil,
// slog.Default() is used.
func NewSRTServer(addr string, registry *Registry, log *slog.Logger) *SRTServer {
	if log == nil {
		log = slog.Default()
	}
	return &SRTServer{
		log:      log.With("component", "srt-ingest"),
		addr:     addr,
		registry: registry,
	}
}

// Start accepts connections until ctx is cancelled.
func (s *SRTServer) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if !strings.HasPrefix(strings.TrimPrefix(req.StreamID, "/"), "wfd/") {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key := extractStreamKey(conn.StreamID())
		s.log.Info("sender connected", "stream_key", key, "remote", conn.RemoteAddr())
		go s.handleConnection(ctx, conn, key)
	}
}

func (s *SRTServer) handleConnection(ctx context.Context, conn *srtgo.Conn, key string) {
	defer conn.Close()

	stream, w := s.registry.Register(key, TransportSRT)
	stream.SetRemoteAddr(conn.RemoteAddr().String())
	dp := NewDepacketizer(stream, w)

	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read error", "stream_key", key, "error", err)
			}
			break
		}
		if err := dp.Write(buf[:n]); err != nil {
			s.log.Debug("pipe write error", "stream_key", key, "error", err)
			break
		}
	}

	stats := stream.IngestStats()
	s.registry.Unregister(key)
	s.log.Info("connection closed", "stream_key", key,
		"bytes", stats.BytesReceived, "rtp_packets", stats.RTPPackets,
		"lost", stats.Lost, "uptime_ms", stats.UptimeMs)
}

// extractStreamKey maps "wfd/<name>" stream ids to "<name>".
func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "wfd/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
