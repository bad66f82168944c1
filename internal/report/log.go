package report

import (
	"log/slog"

	"github.com/zsiec/wfdcast/internal/media"
)

// Log writes every event to a logger at debug level.
type Log struct {
	log *slog.Logger
}

// NewLog creates a Log sink. A nil logger means slog.Default().
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With("component", "report")}
}

func (l *Log) Started() { l.log.Debug("encoder started") }
func (l *Log) Stopped() { l.log.Debug("encoder stopped") }

func (l *Log) BeganFrame(ts int64) {
	l.log.Debug("began frame", "timestamp", ts, "now", media.Now())
}

func (l *Log) FinishedFrame(ts int64) {
	l.log.Debug("finished frame", "timestamp", ts, "now", media.Now())
}

func (l *Log) ReceivedInputBuffer(ts int64) {
	l.log.Debug("received input buffer", "timestamp", ts)
}

func (l *Log) PacketizedFrame(ts int64) {
	l.log.Debug("packetized frame", "timestamp", ts, "now", media.Now())
}

func (l *Log) SentPacket(ts int64, size int) {
	l.log.Debug("sent packet", "timestamp", ts, "size", size, "now", media.Now())
}
