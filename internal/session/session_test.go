package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/wfdcast/internal/media"
	"github.com/zsiec/wfdcast/internal/mpegts"
	"github.com/zsiec/wfdcast/internal/network"
	"github.com/zsiec/wfdcast/internal/wfd"
)

type memStream struct {
	mu     sync.Mutex
	writes [][]byte
	fail   network.Error
	closed bool
	wrote  chan struct{}
}

func newMemStream() *memStream { return &memStream{wrote: make(chan struct{}, 64)} }

func (m *memStream) Connect(context.Context, string, int) error { return nil }
func (m *memStream) WaitUntilReady(ctx context.Context) bool    { return ctx.Err() == nil }
func (m *memStream) LocalPort() int                             { return 5000 }
func (m *memStream) MaxUnitSize() int                           { return 1472 }

func (m *memStream) Write(data []byte, _ int64) network.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != network.ErrorNone {
		return m.fail
	}
	m.writes = append(m.writes, append([]byte(nil), data...))
	select {
	case m.wrote <- struct{}{}:
	default:
	}
	return network.ErrorNone
}

func (m *memStream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memStream) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var sliceAU = []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A, 0x02, 0x11}

func testOptions() Options {
	return Options{Encoder: wfd.DefaultFormat.EncoderConfig(), QueueSize: 64}
}

func TestNewStream(t *testing.T) {
	t.Parallel()

	s, err := NewStream(Options{Transport: TransportUDP})
	require.NoError(t, err)
	assert.IsType(t, &network.UDPStream{}, s)

	s, err = NewStream(Options{Transport: TransportSRT, SRTName: "room"})
	require.NoError(t, err)
	assert.IsType(t, &network.SRTStream{}, s)

	s, err = NewStream(Options{Transport: TransportQUIC})
	require.NoError(t, err)
	assert.IsType(t, &network.QUICStream{}, s)

	s, err = NewStream(Options{Transport: TransportUDP, MaxUnitSize: 12 + 2*188})
	require.NoError(t, err)
	assert.Equal(t, 12+2*188, s.MaxUnitSize())

	s, err = NewStream(Options{Transport: TransportQUIC, MaxUnitSize: 9000})
	require.NoError(t, err)
	assert.Equal(t, 1200, s.MaxUnitSize(), "a larger cap must not raise the transport limit")

	_, err = NewStream(Options{Transport: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestSessionRun(t *testing.T) {
	t.Parallel()

	stream := newMemStream()
	s, err := New("sink-a", stream, testOptions())
	require.NoError(t, err)
	assert.Equal(t, TransportUDP, s.Transport)
	assert.Equal(t, 5000, s.LocalPort())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	require.True(t, s.Media().OnBufferAvailable(media.NewBufferFrom(sliceAU)))
	select {
	case <-stream.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("no RTP packet written")
	}

	stream.mu.Lock()
	first := stream.writes[0]
	stream.mu.Unlock()
	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(first))
	assert.Equal(t, uint8(33), pkt.PayloadType)
	assert.True(t, pkt.Marker)
	// PAT, PMT, PCR and one PES packet fit one datagram.
	require.Len(t, pkt.Payload, 4*188)
	assert.Equal(t, byte(0x47), pkt.Payload[0])
	assert.Equal(t, uint16(mpegts.PIDPAT), uint16(pkt.Payload[1]&0x1F)<<8|uint16(pkt.Payload[2]))

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-s.Done()
	assert.True(t, stream.isClosed())
}

func TestSessionTransportFailure(t *testing.T) {
	t.Parallel()

	stream := newMemStream()
	stream.fail = network.ErrorRemoteClosedConnection
	s, err := New("sink-b", stream, testOptions())
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()
	s.Media().OnBufferAvailable(media.NewBufferFrom(sliceAU))

	select {
	case err := <-runErr:
		assert.True(t, errors.Is(err, network.ErrRemoteClosed), "Run = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a transport failure")
	}
	assert.True(t, stream.isClosed())
}

func TestSessionCloseEndsRun(t *testing.T) {
	t.Parallel()

	s, err := New("sink-c", newMemStream(), testOptions())
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()
	s.Close()
	s.Close()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.False(t, s.Media().OnBufferAvailable(media.NewBufferFrom(sliceAU)))
}

func TestDialUDP(t *testing.T) {
	t.Parallel()

	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer ln.Close()
	port := ln.LocalAddr().(*net.UDPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, "127.0.0.1", port, testOptions())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "127.0.0.1:"+itoa(port), s.Key)
	assert.Zero(t, s.LocalPort()%2, "RTP port should be even")

	go s.Run(ctx)
	s.Media().OnBufferAvailable(media.NewBufferFrom(sliceAU))

	require.NoError(t, ln.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := ln.ReadFromUDP(buf)
	require.NoError(t, err)

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(buf[:n]))
	assert.Equal(t, uint32(0xdeadbeef), pkt.SSRC)
	assert.Zero(t, len(pkt.Payload)%188)

	info := s.Info()
	assert.Equal(t, s.Key, info.Key)
	assert.Equal(t, TransportUDP, info.Transport)
}

func TestDialUnknownTransport(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Transport = "tcp"
	_, err := Dial(context.Background(), "127.0.0.1", 1, opts)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}
