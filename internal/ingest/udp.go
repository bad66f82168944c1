package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	// readBufferSize holds the largest datagram any wfdcast transport sends.
	readBufferSize = 2048
	udpIdleTimeout = 5 * time.Second
)

// UDPServer receives RTP datagrams on one socket and keys streams by the
// sender's address.
type UDPServer struct {
	log      *slog.Logger
	addr     string
	registry *Registry

	ready chan net.Addr
}

// NewUDPServer creates a server listening on addr. If log is nil,
// slog.Default() is used.
func NewUDPServer(addr string, registry *Registry, log *slog.Logger) *UDPServer {
	if log == nil {
		log = slog.Default()
	}
	return &UDPServer{
		log:      log.With("component", "udp-ingest"),
		addr:     addr,
		registry: registry,
		ready:    make(chan net.Addr, 1),
	}
}

// Ready delivers the bound address once the socket is open.
func (s *UDPServer) Ready() <-chan net.Addr { return s.ready }

type udpPeer struct {
	stream *Stream
	dp     *Depacketizer
}

// Start receives until ctx is cancelled. Senders silent for five seconds
// are unregistered.
func (s *UDPServer) Start(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("UDP listen on %s: %w", s.addr, err)
	}
	defer conn.Close()
	s.log.Info("listening", "addr", conn.LocalAddr())
	s.ready <- conn.LocalAddr()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	peers := make(map[string]*udpPeer)
	defer func() {
		for key := range peers {
			s.registry.Unregister(key)
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return err
		}
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.expire(peers)
				continue
			}
			return fmt.Errorf("UDP read: %w", err)
		}

		key := raddr.String()
		p, ok := peers[key]
		if !ok {
			stream, w := s.registry.Register(key, TransportUDP)
			stream.SetRemoteAddr(key)
			p = &udpPeer{stream: stream, dp: NewDepacketizer(stream, w)}
			peers[key] = p
			s.log.Info("new sender", "remote", key)
		}
		if err := p.dp.Write(buf[:n]); err != nil {
			s.log.Debug("drop sender", "remote", key, "error", err)
			delete(peers, key)
			s.registry.Unregister(key)
		}
	}
}

func (s *UDPServer) expire(peers map[string]*udpPeer) {
	now := time.Now()
	for key, p := range peers {
		if p.stream.idleFor(now) < udpIdleTimeout {
			continue
		}
		stats := p.stream.IngestStats()
		delete(peers, key)
		s.registry.Unregister(key)
		s.log.Info("sender idle", "remote", key,
			"bytes", stats.BytesReceived, "rtp_packets", stats.RTPPackets, "lost", stats.Lost)
	}
}
