package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

const (
	srtLatencyNs   = 120_000_000
	srtDialTimeout = 10 * time.Second
	// SRT live mode carries at most 1316 bytes of payload, seven TS
	// packets; the RTP header rides on top.
	srtMaxUnitSize = 1316 + 12
)

// SRTStream sends datagrams as SRT live-mode messages to a listening sink.
type SRTStream struct {
	log  *slog.Logger
	name string

	mu   sync.Mutex
	conn *srtgo.Conn
}

// NewSRTStream creates a stream that announces itself with stream id
// "wfd/<name>".
func NewSRTStream(name string, log *slog.Logger) *SRTStream {
	if log == nil {
		log = slog.Default()
	}
	return &SRTStream{
		log:  log.With("component", "srt-stream", "name", name),
		name: name,
	}
}

// StreamID returns the stream id sent in the SRT handshake.
func (s *SRTStream) StreamID() string { return srtStreamID(s.name) }

func srtStreamID(name string) string {
	if name == "" {
		name = "default"
	}
	return "wfd/" + name
}

// Connect dials the sink. The dial runs in the background so ctx and the
// dial timeout can abandon it; a late connection is closed.
func (s *SRTStream) Connect(ctx context.Context, address string, port int) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = s.StreamID()

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	s.log.Info("dialing", "address", addr, "stream_id", cfg.StreamID)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, cfg)
		ch <- dialResult{conn, err}
	}()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	timer := time.NewTimer(srtDialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("SRT dial %s: %w", addr, res.err)
		}
		s.mu.Lock()
		s.conn = res.conn
		s.mu.Unlock()
		s.log.Info("connected", "remote", res.conn.RemoteAddr())
		return nil
	case <-timer.C:
		abandon()
		return fmt.Errorf("SRT dial %s timed out after %s", addr, srtDialTimeout)
	case <-ctx.Done():
		abandon()
		return ctx.Err()
	}
}

// WaitUntilReady reports whether the handshake completed.
func (s *SRTStream) WaitUntilReady(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *SRTStream) Write(data []byte, _ int64) Error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrorFailed
	}

	if _, err := conn.Write(data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return ErrorRemoteClosedConnection
		}
		s.log.Warn("write failed", "size", len(data), "error", err)
		return ErrorFailed
	}
	return ErrorNone
}

// LocalPort returns the bound UDP port, or 0 before Connect.
func (s *SRTStream) LocalPort() int {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0
	}
	if la, ok := any(conn).(interface{ LocalAddr() net.Addr }); ok {
		if ua, ok := la.LocalAddr().(*net.UDPAddr); ok {
			return ua.Port
		}
	}
	return 0
}

func (s *SRTStream) MaxUnitSize() int { return srtMaxUnitSize }

func (s *SRTStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
