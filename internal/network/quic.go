package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/wfdcast/internal/certs"
)

const (
	// ALPN is the application protocol negotiated by QUIC sinks.
	ALPN = "wfd-rtp"

	quicMaxUnitSize = 1200
	quicIdleTimeout = 30 * time.Second
)

// QUICStream sends each datagram as an unreliable QUIC DATAGRAM frame.
type QUICStream struct {
	log         *slog.Logger
	fingerprint [32]byte

	mu   sync.Mutex
	conn quic.Connection
}

// NewQUICStream creates a stream that accepts a sink certificate whose
// SHA-256 matches fingerprint. A zero fingerprint accepts any certificate.
func NewQUICStream(fingerprint [32]byte, log *slog.Logger) *QUICStream {
	if log == nil {
		log = slog.Default()
	}
	return &QUICStream{
		log:         log.With("component", "quic-stream"),
		fingerprint: fingerprint,
	}
}

// QUICConfig returns the QUIC settings shared by QUIC sources and sinks.
func QUICConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  quicIdleTimeout,
		KeepAlivePeriod: quicIdleTimeout / 3,
	}
}

func (s *QUICStream) Connect(ctx context.Context, address string, port int) error {
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	tlsConf := certs.PinnedClientTLS(s.fingerprint, ALPN)

	conn, err := quic.DialAddr(ctx, addr, tlsConf, QUICConfig())
	if err != nil {
		return fmt.Errorf("QUIC dial %s: %w", addr, err)
	}
	if !conn.ConnectionState().SupportsDatagrams {
		conn.CloseWithError(0, "datagrams required")
		return fmt.Errorf("QUIC sink %s does not support datagrams", addr)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("connected", "local", conn.LocalAddr(), "remote", conn.RemoteAddr())
	return nil
}

// WaitUntilReady reports whether the connection is established and alive.
// DialAddr returns only after the handshake, so there is nothing to wait for.
func (s *QUICStream) WaitUntilReady(ctx context.Context) bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn != nil && conn.Context().Err() == nil && ctx.Err() == nil
}

func (s *QUICStream) Write(data []byte, _ int64) Error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrorFailed
	}

	if err := conn.SendDatagram(data); err != nil {
		if conn.Context().Err() != nil {
			return ErrorRemoteClosedConnection
		}
		var tooLarge *quic.DatagramTooLargeError
		if errors.As(err, &tooLarge) {
			s.log.Warn("datagram too large", "size", len(data), "max", tooLarge.MaxDatagramPayloadSize)
		} else {
			s.log.Warn("write failed", "size", len(data), "error", err)
		}
		return ErrorFailed
	}
	return ErrorNone
}

func (s *QUICStream) LocalPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0
	}
	if ua, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.Port
	}
	return 0
}

func (s *QUICStream) MaxUnitSize() int { return quicMaxUnitSize }

func (s *QUICStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.CloseWithError(0, "")
	s.conn = nil
	return err
}
