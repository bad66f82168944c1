// Package config reads the wfdcast settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/wfdcast/internal/report"
	"github.com/zsiec/wfdcast/internal/wfd"
)

// Transport names accepted in WFD_TRANSPORT.
const (
	TransportUDP  = "udp"
	TransportSRT  = "srt"
	TransportQUIC = "quic"
)

// Sink is one receiver address.
type Sink struct {
	Host string
	Port int
}

func (s Sink) String() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

// Config holds everything the wfdcast binary needs.
type Config struct {
	Sinks       []Sink
	Transport   string
	Input       string
	Loop        bool
	Framerate   int
	Format      wfd.H264VideoFormat
	QueueSize   int
	PSIInterval time.Duration
	// MaxUnitSize caps the datagram size below the transport's own limit.
	// Zero keeps the transport default.
	MaxUnitSize     int
	ReportKind      report.Kind
	MetricsAddr     string
	QUICFingerprint string
	SRTName         string
	StatsInterval   time.Duration
	Debug           bool
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	c := &Config{
		Transport:       strings.ToLower(e.str("WFD_TRANSPORT", TransportUDP)),
		Input:           e.str("WFD_INPUT", ""),
		Loop:            e.boolean("WFD_LOOP", false),
		QueueSize:       e.integer("WFD_QUEUE_SIZE", 512),
		PSIInterval:     e.duration("WFD_PSI_INTERVAL", 100*time.Millisecond),
		MaxUnitSize:     e.integer("WFD_MAX_UNIT_SIZE", 0),
		MetricsAddr:     e.str("WFD_METRICS_ADDR", ""),
		QUICFingerprint: e.str("WFD_QUIC_FINGERPRINT", ""),
		SRTName:         e.str("WFD_SRT_NAME", "default"),
		StatsInterval:   e.duration("WFD_STATS_INTERVAL", 0),
		Debug:           getenv("DEBUG") != "",
	}

	var errs []error
	sinks, err := ParseSinks(e.str("WFD_SINKS", ""))
	if err != nil {
		errs = append(errs, err)
	}
	c.Sinks = sinks

	if c.ReportKind, err = report.ParseKind(getenv(report.EnvReportType)); err != nil {
		errs = append(errs, err)
	}

	c.Format = wfd.DefaultFormat
	if v := getenv("WFD_PROFILE"); v != "" {
		if c.Format.Profile, err = wfd.ParseProfile(v); err != nil {
			errs = append(errs, err)
		}
	}
	if v := getenv("WFD_LEVEL"); v != "" {
		if c.Format.Level, err = wfd.ParseLevel(v); err != nil {
			errs = append(errs, err)
		}
	}
	if v := getenv("WFD_RESOLUTION"); v != "" {
		if c.Format.Type, c.Format.RateResolution, err = wfd.ParseResolution(v); err != nil {
			errs = append(errs, err)
		}
	}
	c.Framerate = e.integer("WFD_FRAMERATE", c.Format.ExtractRateAndResolution().Framerate)
	errs = append(errs, e.errs...)

	if err := c.validate(); err != nil {
		errs = append(errs, err)
	}
	return c, errors.Join(errs...)
}

func (c *Config) validate() error {
	var errs []error
	switch c.Transport {
	case TransportUDP, TransportSRT, TransportQUIC:
	default:
		errs = append(errs, fmt.Errorf("config: unknown transport %q", c.Transport))
	}
	if len(c.Sinks) == 0 {
		errs = append(errs, errors.New("config: WFD_SINKS is empty"))
	}
	if c.Input == "" {
		errs = append(errs, errors.New("config: WFD_INPUT is empty"))
	}
	if c.Framerate < 0 {
		errs = append(errs, fmt.Errorf("config: negative framerate %d", c.Framerate))
	}
	if c.MaxUnitSize != 0 && c.MaxUnitSize < 12+188 {
		errs = append(errs, fmt.Errorf("config: max unit size %d cannot carry a TS packet", c.MaxUnitSize))
	}
	return errors.Join(errs...)
}

// EncoderConfig returns the encoder settings for the configured format
// with the configured frame rate.
func (c *Config) EncoderConfig() wfd.EncoderConfig {
	ec := c.Format.EncoderConfig()
	if c.Framerate > 0 {
		ec.Framerate = c.Framerate
	}
	return ec
}

// ParseSinks parses a comma separated list of host:port pairs.
func ParseSinks(s string) ([]Sink, error) {
	var (
		sinks []Sink
		errs  []error
	)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(field)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: sink %q: %w", field, err))
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("config: sink %q: invalid port", field))
			continue
		}
		if host == "" {
			host = "127.0.0.1"
		}
		sinks = append(sinks, Sink{Host: host, Port: port})
	}
	return sinks, errors.Join(errs...)
}

// env reads typed values, falling back on absence and collecting parse
// errors.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, fallback string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return d
}

func (e *env) boolean(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return b
}
