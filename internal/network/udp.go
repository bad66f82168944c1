package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"syscall"
)

const (
	udpMaxUnitSize  = 1472
	udpSendBufSize  = 256 * 1024
	udpMinPort      = 1024
	udpMaxPort      = 65534
	udpBindAttempts = 20
)

// UDPStream sends datagrams from a random even local port, leaving the odd
// port above it free for RTCP.
type UDPStream struct {
	log *slog.Logger

	mu   sync.Mutex
	conn *net.UDPConn
}

func NewUDPStream(log *slog.Logger) *UDPStream {
	if log == nil {
		log = slog.Default()
	}
	return &UDPStream{log: log.With("component", "udp-stream")}
}

// Connect binds the local port and connects the socket to address:port.
func (s *UDPStream) Connect(ctx context.Context, address string, port int) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("resolve sink %s:%d: %w", address, port, err)
	}

	var conn *net.UDPConn
	for attempt := 0; attempt < udpBindAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		laddr := &net.UDPAddr{Port: randomEvenPort()}
		conn, err = net.DialUDP("udp", laddr, raddr)
		if err == nil {
			break
		}
		s.log.Debug("bind failed, retrying", "port", laddr.Port, "error", err)
	}
	if err != nil {
		return fmt.Errorf("bind local port: %w", err)
	}

	if err := conn.SetWriteBuffer(udpSendBufSize); err != nil {
		s.log.Warn("set send buffer", "error", err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Info("connected", "local", conn.LocalAddr(), "remote", raddr)
	return nil
}

func randomEvenPort() int {
	return udpMinPort + 2*rand.IntN((udpMaxPort-udpMinPort)/2)
}

// WaitUntilReady reports whether Connect has succeeded; UDP needs no
// handshake.
func (s *UDPStream) WaitUntilReady(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *UDPStream) Write(data []byte, _ int64) Error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrorFailed
	}

	_, err := conn.Write(data)
	if err != nil && isCongested(err) {
		// The kernel queue was full; one retry usually gets through.
		_, err = conn.Write(data)
	}
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, net.ErrClosed):
		s.log.Debug("sink unreachable", "error", err)
		return ErrorRemoteClosedConnection
	default:
		s.log.Warn("write failed", "size", len(data), "error", err)
		return ErrorFailed
	}
}

func isCongested(err error) bool {
	return errors.Is(err, syscall.ENOBUFS) || errors.Is(err, syscall.EAGAIN)
}

func (s *UDPStream) LocalPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0
	}
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *UDPStream) MaxUnitSize() int { return udpMaxUnitSize }

func (s *UDPStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
