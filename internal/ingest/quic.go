package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/wfdcast/internal/certs"
	"github.com/zsiec/wfdcast/internal/network"
)

// QUICServer accepts QUIC connections and reads one RTP packet per
// datagram.
type QUICServer struct {
	log      *slog.Logger
	addr     string
	cert     *certs.CertInfo
	registry *Registry

	ready chan net.Addr
}

// NewQUICServer creates a server presenting cert on addr. If log is nil,
// slog.Default() is used.
func NewQUICServer(addr string, cert *certs.CertInfo, registry *Registry, log *slog.Logger) *QUICServer {
	if log == nil {
		log = slog.Default()
	}
	return &QUICServer{
		log:      log.With("component", "quic-ingest"),
		addr:     addr,
		cert:     cert,
		registry: registry,
		ready:    make(chan net.Addr, 1),
	}
}

// Ready delivers the bound address once the listener is open.
func (s *QUICServer) Ready() <-chan net.Addr { return s.ready }

// Start accepts connections until ctx is cancelled.
func (s *QUICServer) Start(ctx context.Context) error {
	ln, err := quic.ListenAddr(s.addr, s.cert.ServerTLS(network.ALPN), network.QUICConfig())
	if err != nil {
		return fmt.Errorf("QUIC listen on %s: %w", s.addr, err)
	}
	defer ln.Close()
	s.log.Info("listening", "addr", ln.Addr(), "fingerprint", s.cert.FingerprintBase64())
	s.ready <- ln.Addr()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("QUIC accept: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *QUICServer) handleConnection(ctx context.Context, conn quic.Connection) {
	defer conn.CloseWithError(0, "")

	key := conn.RemoteAddr().String()
	stream, w := s.registry.Register(key, TransportQUIC)
	stream.SetRemoteAddr(key)
	dp := NewDepacketizer(stream, w)
	s.log.Info("sender connected", "remote", key)

	for {
		msg, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			s.log.Debug("receive ended", "remote", key, "error", err)
			break
		}
		if err := dp.Write(msg); err != nil {
			s.log.Debug("pipe write error", "remote", key, "error", err)
			break
		}
	}

	stats := stream.IngestStats()
	s.registry.Unregister(key)
	s.log.Info("connection closed", "remote", key,
		"bytes", stats.BytesReceived, "rtp_packets", stats.RTPPackets, "lost", stats.Lost)
}
