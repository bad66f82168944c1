// Package source stands in for a hardware encoder: it reads an H.264
// Annex-B elementary stream, splits it into access units and delivers them
// to sinks at the configured frame rate.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/wfdcast/internal/h264"
	"github.com/zsiec/wfdcast/internal/media"
	"github.com/zsiec/wfdcast/internal/report"
)

// Sink consumes encoder output. streaming.MediaSender implements it.
type Sink interface {
	OnBufferAvailable(buf *media.Buffer) bool
	OnBufferWithCodecConfig(buf *media.Buffer) error
}

// ErrNoAccessUnits is returned when the input holds no decodable NAL units.
var ErrNoAccessUnits = errors.New("source: input contains no access units")

// Stats counts what the source delivered.
type Stats struct {
	Frames       int64       `json:"frames"`
	Bytes        int64       `json:"bytes"`
	CodecConfigs int64       `json:"codecConfigs"`
	Loops        int64       `json:"loops"`
	NAL          h264.Result `json:"nal"`
}

// Source replays access units to its sinks.
type Source struct {
	log       *slog.Logger
	report    report.EncoderReport
	clock     func() int64
	framerate int
	loop      bool
	pool      *media.Pool
	analyzer  *h264.Analyzer

	units [][]byte

	mu      sync.Mutex
	sinks   []Sink
	info    h264.SPSInfo
	hasInfo bool
	lastCSD []byte

	frames       atomic.Int64
	bytes        atomic.Int64
	codecConfigs atomic.Int64
	loops        atomic.Int64
}

// New reads the whole of r and prepares it for playback.
func New(r io.Reader, opts ...func(*Source)) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	s := &Source{
		log:       slog.Default(),
		report:    report.Null{},
		clock:     media.Now,
		framerate: 30,
		pool:      media.NewPool(32),
		analyzer:  h264.NewAnalyzer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "source")

	s.units = h264.SplitAccessUnits(data)
	if len(s.units) == 0 {
		return nil, ErrNoAccessUnits
	}
	return s, nil
}

// Open is New for a file path.
func Open(path string, opts ...func(*Source)) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return New(f, opts...)
}

// SourceOptLogger sets the logger.
func SourceOptLogger(log *slog.Logger) func(*Source) {
	return func(s *Source) {
		if log != nil {
			s.log = log
		}
	}
}

// SourceOptReport sets the receiver of encoder events.
func SourceOptReport(r report.EncoderReport) func(*Source) {
	return func(s *Source) {
		if r != nil {
			s.report = r
		}
	}
}

// SourceOptFramerate sets the playback rate. Zero delivers access units
// as fast as the sinks accept them.
func SourceOptFramerate(fps int) func(*Source) {
	return func(s *Source) {
		if fps >= 0 {
			s.framerate = fps
		}
	}
}

// SourceOptLoop restarts playback at the end of the input.
func SourceOptLoop(loop bool) func(*Source) {
	return func(s *Source) {
		s.loop = loop
	}
}

// SourceOptClock replaces the microsecond clock used for timestamps.
func SourceOptClock(clock func() int64) func(*Source) {
	return func(s *Source) {
		s.clock = clock
	}
}

// AddSink registers a consumer. Sinks added while Run is active receive
// the current codec config before their first access unit.
func (s *Source) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
	if s.lastCSD != nil {
		s.sendCSD(sink, s.lastCSD)
	}
}

// RemoveSink unregisters a consumer.
func (s *Source) RemoveSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.sinks {
		if k == sink {
			s.sinks = append(s.sinks[:i], s.sinks[i+1:]...)
			return
		}
	}
}

// AccessUnits returns the number of access units in the input.
func (s *Source) AccessUnits() int { return len(s.units) }

// Info returns the parsed SPS of the stream once one has been seen.
func (s *Source) Info() (h264.SPSInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.hasInfo
}

// Stats returns delivery counters.
func (s *Source) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		Bytes:        s.bytes.Load(),
		CodecConfigs: s.codecConfigs.Load(),
		Loops:        s.loops.Load(),
		NAL:          s.analyzer.Statistics(),
	}
}

// Run plays the input until it ends or ctx is cancelled. With looping
// enabled it only returns on cancellation.
func (s *Source) Run(ctx context.Context) error {
	s.report.Started()
	defer s.report.Stopped()

	var tick <-chan time.Time
	if s.framerate > 0 {
		t := time.NewTicker(time.Second / time.Duration(s.framerate))
		defer t.Stop()
		tick = t.C
	}

	for {
		for _, au := range s.units {
			if tick != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return nil
			}
			s.deliver(au)
		}
		if !s.loop {
			s.log.Info("input finished", "frames", s.frames.Load())
			return nil
		}
		s.loops.Add(1)
	}
}

// deliver splits parameter sets off au, forwards changed codec config and
// hands the remaining NAL units to every sink.
func (s *Source) deliver(au []byte) {
	ts := s.clock()
	s.report.ReceivedInputBuffer(ts)
	s.analyzer.Process(au)

	var csd, frame []byte
	for _, nal := range h264.ParseAnnexB(au) {
		switch nal.Type {
		case h264.NALTypeSPS, h264.NALTypePPS:
			csd = h264.AppendStartCode(csd, nal.Data)
		default:
			frame = h264.AppendStartCode(frame, nal.Data)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if csd != nil && !bytes.Equal(csd, s.lastCSD) {
		s.lastCSD = csd
		s.codecConfigs.Add(1)
		s.parseInfo(csd)
		for _, sink := range s.sinks {
			s.sendCSD(sink, csd)
		}
	}
	if len(frame) == 0 {
		return
	}

	s.report.BeganFrame(ts)
	for _, sink := range s.sinks {
		buf := s.pool.Get(len(frame), ts)
		copy(buf.Data(), frame)
		sink.OnBufferAvailable(buf)
	}
	s.report.FinishedFrame(ts)
	s.frames.Add(1)
	s.bytes.Add(int64(len(frame)))
}

func (s *Source) sendCSD(sink Sink, csd []byte) {
	buf := media.NewBufferFrom(csd)
	buf.SetTimestamp(s.clock())
	if err := sink.OnBufferWithCodecConfig(buf); err != nil {
		s.log.Warn("sink rejected codec config", "error", err)
	}
}

func (s *Source) parseInfo(csd []byte) {
	for _, nal := range h264.ParseAnnexB(csd) {
		if nal.Type != h264.NALTypeSPS {
			continue
		}
		info, err := h264.ParseSPS(nal.Data)
		if err != nil {
			s.log.Warn("unparseable SPS", "error", err)
			return
		}
		s.info, s.hasInfo = info, true
		s.log.Info("stream parameters",
			"codec", info.CodecString(),
			"width", info.Width,
			"height", info.Height,
		)
		return
	}
}
