package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/wfdcast/internal/media"
	"github.com/zsiec/wfdcast/internal/mpegts"
	"github.com/zsiec/wfdcast/internal/report"
	"github.com/zsiec/wfdcast/internal/wfd"
)

const (
	// DefaultPSIInterval is how often PAT, PMT and PCR are repeated.
	DefaultPSIInterval = 100 * time.Millisecond

	defaultMediaQueueSize = 64
)

var (
	ErrNotConfigured     = errors.New("streaming: media sender not configured")
	ErrAlreadyConfigured = errors.New("streaming: media sender already configured")
)

// MediaSender takes encoded access units, packetizes them into MPEG-TS and
// hands the result to a TransportSender.
type MediaSender struct {
	log        *slog.Logger
	packetizer *mpegts.Packetizer
	sender     TransportSender
	stats      *report.Statistics
	clock      func() int64

	psiInterval int64
	queue       *media.Queue

	mu      sync.Mutex
	trackID int

	// Worker state, touched only from Execute.
	lastPSI     int64
	secondStart int64
	secondCount int
}

// NewMediaSender creates a sender feeding packetizer output to sender.
// Configure must be called before buffers are accepted.
func NewMediaSender(packetizer *mpegts.Packetizer, sender TransportSender, opts ...func(*MediaSender)) *MediaSender {
	s := &MediaSender{
		log:         slog.Default(),
		packetizer:  packetizer,
		sender:      sender,
		clock:       media.Now,
		psiInterval: DefaultPSIInterval.Microseconds(),
		trackID:     -1,
		lastPSI:     -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queue == nil {
		s.queue = media.NewQueue(defaultMediaQueueSize)
	}
	s.log = s.log.With("component", "media-sender")
	return s
}

// MediaSenderOptLogger sets the logger.
func MediaSenderOptLogger(log *slog.Logger) func(*MediaSender) {
	return func(s *MediaSender) {
		if log != nil {
			s.log = log
		}
	}
}

// MediaSenderOptStatistics records buffer rates into stats.
func MediaSenderOptStatistics(stats *report.Statistics) func(*MediaSender) {
	return func(s *MediaSender) {
		s.stats = stats
	}
}

// MediaSenderOptPSIInterval changes how often PAT, PMT and PCR are sent.
// Zero sends them with every access unit.
func MediaSenderOptPSIInterval(d time.Duration) func(*MediaSender) {
	return func(s *MediaSender) {
		if d >= 0 {
			s.psiInterval = d.Microseconds()
		}
	}
}

// MediaSenderOptQueueSize bounds the number of access units waiting to be
// packetized. Zero makes the queue unbounded.
func MediaSenderOptQueueSize(n int) func(*MediaSender) {
	return func(s *MediaSender) {
		s.queue = media.NewQueue(n)
	}
}

// MediaSenderOptClock replaces the microsecond clock.
func MediaSenderOptClock(clock func() int64) func(*MediaSender) {
	return func(s *MediaSender) {
		s.clock = clock
	}
}

// Configure adds the H.264 track described by cfg to the packetizer.
func (s *MediaSender) Configure(cfg wfd.EncoderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trackID >= 0 {
		return ErrAlreadyConfigured
	}
	id, err := s.packetizer.AddTrack(mpegts.TrackFormat{
		MIME:          mpegts.MIMETypeAVC,
		ProfileIDC:    cfg.ProfileIDC,
		LevelIDC:      cfg.LevelIDC,
		ConstraintSet: cfg.ConstraintSet,
	})
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}
	s.trackID = id
	s.log.Info("configured",
		"track", id,
		"width", cfg.Width,
		"height", cfg.Height,
		"framerate", cfg.Framerate,
		"profile_idc", cfg.ProfileIDC,
		"level_idc", cfg.LevelIDC,
	)
	return nil
}

func (s *MediaSender) track() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackID
}

// OnBufferAvailable queues an encoded access unit. It returns false when
// the sender is unconfigured, closed or backed up.
func (s *MediaSender) OnBufferAvailable(buf *media.Buffer) bool {
	if s.track() < 0 {
		s.log.Warn("dropping buffer before Configure", "ts", buf.Timestamp())
		return false
	}
	if !s.queue.Push(buf) {
		s.log.Debug("queue full, dropping access unit", "ts", buf.Timestamp())
		buf.Release()
		return false
	}
	if s.stats != nil {
		s.stats.RecordEncoderBufferOut(s.clock() - buf.Timestamp())
	}
	return true
}

// OnBufferWithCodecConfig hands SPS and PPS to the packetizer.
func (s *MediaSender) OnBufferWithCodecConfig(buf *media.Buffer) error {
	id := s.track()
	if id < 0 {
		return ErrNotConfigured
	}
	return s.packetizer.SubmitCSD(id, buf)
}

// LocalRTPPort returns the transport's local port, or 0 without one.
func (s *MediaSender) LocalRTPPort() int {
	if s.sender == nil {
		return 0
	}
	return s.sender.LocalPort()
}

// Name identifies the sender's executor.
func (s *MediaSender) Name() string { return "MediaSender" }

// Execute packetizes one access unit and forwards it. It returns false
// once the sender is closed or ctx ends.
func (s *MediaSender) Execute(ctx context.Context) bool {
	buf, err := s.queue.Next(ctx)
	if err != nil {
		return false
	}
	defer buf.Release()

	now := s.clock()
	flags := mpegts.PrependSPSAndPPSToIDR
	if s.lastPSI < 0 || now-s.lastPSI >= s.psiInterval {
		flags |= mpegts.EmitPATAndPMT | mpegts.EmitPCR
		s.lastPSI = now
	}

	packets, err := s.packetizer.Packetize(s.track(), buf, flags)
	if err != nil {
		s.log.Error("packetize", "ts", buf.Timestamp(), "error", err)
		return true
	}
	if s.sender != nil && !s.sender.Queue(packets) {
		s.log.Warn("transport rejected access unit", "ts", buf.Timestamp(), "bytes", packets.Length())
	}
	s.countBuffer(now)
	return true
}

func (s *MediaSender) countBuffer(now int64) {
	if s.secondStart == 0 {
		s.secondStart = now
	}
	s.secondCount++
	if now-s.secondStart < 1_000_000 {
		return
	}
	if s.stats != nil {
		s.stats.RecordSenderBufferPerSecond(s.secondCount)
	}
	s.secondStart, s.secondCount = now, 0
}

// Pending returns the number of access units waiting to be packetized.
func (s *MediaSender) Pending() int { return s.queue.Size() }

// Close stops accepting buffers and releases the queued ones.
func (s *MediaSender) Close() {
	s.queue.Lock()
	for b := s.queue.PopUnlocked(); b != nil; b = s.queue.PopUnlocked() {
		b.Release()
	}
	s.queue.Unlock()
	s.queue.Close()
}
