package report

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/wfdcast/internal/media"
)

// Metrics counts events in a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	encoderRunning  prometheus.Gauge
	framesBegan     prometheus.Counter
	framesFinished  prometheus.Counter
	inputBuffers    prometheus.Counter
	framesPacked    prometheus.Counter
	packetsSent     prometheus.Counter
	bytesSent       prometheus.Counter
	packetSize      prometheus.Histogram
	packetizeLateMs prometheus.Histogram
}

// NewMetrics creates a Metrics sink and registers its collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		encoderRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wfd_encoder_running",
			Help: "Encoder state (0=stopped, 1=running)",
		}),
		framesBegan: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfd_encoder_frames_began_total",
			Help: "Frames the encoder started to produce",
		}),
		framesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfd_encoder_frames_finished_total",
			Help: "Frames the encoder finished",
		}),
		inputBuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfd_encoder_input_buffers_total",
			Help: "Input buffers handed to the encoder",
		}),
		framesPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfd_packetizer_frames_total",
			Help: "Access units packetized into MPEG-TS",
		}),
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfd_sender_packets_total",
			Help: "RTP packets written to the sink",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfd_sender_bytes_total",
			Help: "RTP bytes written to the sink",
		}),
		packetSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wfd_sender_packet_size_bytes",
			Help:    "Size of RTP packets written to the sink",
			Buckets: prometheus.LinearBuckets(200, 200, 8),
		}),
		packetizeLateMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wfd_packetizer_delay_ms",
			Help:    "Time between frame timestamp and packetization",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.encoderRunning,
		m.framesBegan,
		m.framesFinished,
		m.inputBuffers,
		m.framesPacked,
		m.packetsSent,
		m.bytesSent,
		m.packetSize,
		m.packetizeLateMs,
	)
	return m
}

func (m *Metrics) Started()                  { m.encoderRunning.Set(1) }
func (m *Metrics) Stopped()                  { m.encoderRunning.Set(0) }
func (m *Metrics) BeganFrame(int64)          { m.framesBegan.Inc() }
func (m *Metrics) FinishedFrame(int64)       { m.framesFinished.Inc() }
func (m *Metrics) ReceivedInputBuffer(int64) { m.inputBuffers.Inc() }

func (m *Metrics) PacketizedFrame(ts int64) {
	m.framesPacked.Inc()
	if delay := media.Now() - ts; delay >= 0 {
		m.packetizeLateMs.Observe(float64(delay) / 1000)
	}
}

func (m *Metrics) SentPacket(_ int64, size int) {
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(size))
	m.packetSize.Observe(float64(size))
}

// Registry returns the registry holding the sink's collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
