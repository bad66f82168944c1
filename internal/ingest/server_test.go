package ingest

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/zsiec/wfdcast/internal/certs"
	"github.com/zsiec/wfdcast/internal/network"
)

func TestExtractStreamKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     string
	}{
		{name: "simple key", streamID: "living-room", want: "living-room"},
		{name: "leading slash", streamID: "/living-room", want: "living-room"},
		{name: "wfd prefix", streamID: "wfd/living-room", want: "living-room"},
		{name: "slash and wfd prefix", streamID: "/wfd/living-room", want: "living-room"},
		{name: "empty returns default", streamID: "", want: "default"},
		{name: "just wfd/ returns default", streamID: "wfd/", want: "default"},
		{name: "nested path preserved", streamID: "wfd/house/tv", want: "house/tv"},
		{name: "wfd in name preserved", streamID: "wfdsink", want: "wfdsink"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extractStreamKey(tc.streamID)
			if got != tc.want {
				t.Errorf("extractStreamKey(%q) = %q, want %q", tc.streamID, got, tc.want)
			}
		})
	}
}

// collector reads the first n bytes of every registered stream.
func collector(n int) (*Registry, <-chan []byte) {
	got := make(chan []byte, 4)
	r := NewRegistry(func(_ string, input io.Reader, _ Transport) {
		buf := make([]byte, n)
		if _, err := io.ReadFull(input, buf); err == nil {
			got <- buf
		}
		io.Copy(io.Discard, input)
	})
	return r, got
}

func waitAddr(t *testing.T, ch <-chan net.Addr) net.Addr {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return nil
}

func TestUDPServer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry, got := collector(2 * tsPacketSize)
	srv := NewUDPServer("127.0.0.1:0", registry, nil)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()
	addr := waitAddr(t, srv.Ready()).(*net.UDPAddr)

	stream := network.NewUDPStream(nil)
	if err := stream.Connect(ctx, "127.0.0.1", addr.Port); err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if e := stream.Write(rtpDatagram(t, 1, payloadTypeMP2T, 2*tsPacketSize), 0); e != network.ErrorNone {
		t.Fatalf("Write = %v", e)
	}

	select {
	case b := <-got:
		if b[0] != 0x47 || b[tsPacketSize] != 0x47 {
			t.Error("forwarded bytes are not transport stream packets")
		}
	case <-ctx.Done():
		t.Fatal("no transport stream received")
	}

	list := registry.List()
	if len(list) != 1 || list[0].Transport != TransportUDP {
		t.Fatalf("registry = %d streams", len(list))
	}
	if s := list[0].IngestStats(); s.RTPPackets != 1 || s.RemoteAddr == "" {
		t.Errorf("stats = %+v", s)
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Start = %v", err)
	}
	if n := len(registry.List()); n != 0 {
		t.Errorf("%d streams left after shutdown", n)
	}
}

func TestQUICServer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	registry, got := collector(tsPacketSize)
	srv := NewQUICServer("127.0.0.1:0", cert, registry, nil)
	go srv.Start(ctx)
	addr := waitAddr(t, srv.Ready()).(*net.UDPAddr)

	stream := network.NewQUICStream(cert.Fingerprint, nil)
	if err := stream.Connect(ctx, "127.0.0.1", addr.Port); err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if !stream.WaitUntilReady(ctx) {
		t.Fatal("QUIC stream not ready")
	}
	if e := stream.Write(rtpDatagram(t, 7, payloadTypeMP2T, tsPacketSize), 0); e != network.ErrorNone {
		t.Fatalf("Write = %v", e)
	}

	select {
	case b := <-got:
		if b[0] != 0x47 {
			t.Error("forwarded bytes are not a transport stream packet")
		}
	case <-ctx.Done():
		t.Fatal("no transport stream received")
	}
}
