package report

import (
	"log/slog"
	"math"
	"sync"
)

// Accumulator keeps running min, max, mean and variance of a series.
type Accumulator struct {
	count    int64
	min, max int64
	mean     float64
	m2       float64
}

// Add records one sample.
func (a *Accumulator) Add(v int64) {
	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.count++
	delta := float64(v) - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (float64(v) - a.mean)
}

// Summary is a point-in-time view of an Accumulator.
type Summary struct {
	Count    int64   `json:"count"`
	Min      int64   `json:"min"`
	Max      int64   `json:"max"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Summary returns the current values. Variance is the population variance.
func (a *Accumulator) Summary() Summary {
	s := Summary{Count: a.count, Min: a.min, Max: a.max, Mean: a.mean}
	if a.count > 0 {
		s.Variance = a.m2 / float64(a.count)
	}
	return s
}

// StdDev returns the population standard deviation.
func (s Summary) StdDev() float64 { return math.Sqrt(s.Variance) }

// Series names recorded by Statistics.
const (
	SeriesEncoderBufferOut   = "encoder buffer out"
	SeriesSenderBufferPerSec = "sender buffer per second"
	SeriesRTPBufferQueued    = "rtp buffer queued"
	SeriesRTPBufferSent      = "rtp buffer sent"
	SeriesRTPBandwidthMbit   = "rtp bandwidth"
	seriesCount              = 5
)

var seriesOrder = [seriesCount]string{
	SeriesEncoderBufferOut,
	SeriesSenderBufferPerSec,
	SeriesRTPBufferQueued,
	SeriesRTPBufferSent,
	SeriesRTPBandwidthMbit,
}

// Statistics collects timing series from the encoder and the sender.
// Timespans are in microseconds.
type Statistics struct {
	mu  sync.Mutex
	acc map[string]*Accumulator
}

func NewStatistics() *Statistics {
	s := &Statistics{acc: make(map[string]*Accumulator, seriesCount)}
	for _, name := range seriesOrder {
		s.acc[name] = &Accumulator{}
	}
	return s
}

func (s *Statistics) record(name string, v int64) {
	s.mu.Lock()
	s.acc[name].Add(v)
	s.mu.Unlock()
}

func (s *Statistics) RecordEncoderBufferOut(us int64)   { s.record(SeriesEncoderBufferOut, us) }
func (s *Statistics) RecordSenderBufferPerSecond(n int) { s.record(SeriesSenderBufferPerSec, int64(n)) }
func (s *Statistics) RecordRTPBufferQueued(us int64)    { s.record(SeriesRTPBufferQueued, us) }
func (s *Statistics) RecordRTPBufferSent(us int64)      { s.record(SeriesRTPBufferSent, us) }
func (s *Statistics) RecordRTPBandwidth(mbit int64)     { s.record(SeriesRTPBandwidthMbit, mbit) }

// Snapshot returns a summary per series.
func (s *Statistics) Snapshot() map[string]Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Summary, len(s.acc))
	for name, a := range s.acc {
		out[name] = a.Summary()
	}
	return out
}

// Dump logs every series that has samples.
func (s *Statistics) Dump(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	snap := s.Snapshot()
	for _, name := range seriesOrder {
		sum := snap[name]
		if sum.Count == 0 {
			continue
		}
		log.Info("statistics",
			"series", name,
			"count", sum.Count,
			"min", sum.Min,
			"max", sum.Max,
			"mean", sum.Mean,
			"variance", sum.Variance,
		)
	}
}
