// Package network provides the datagram transports RTP packets are written
// to: plain UDP as Wi-Fi Display sinks expect, plus SRT and QUIC datagram
// variants for sinks reachable over less friendly networks.
package network

import (
	"context"
	"errors"
)

// Error classifies the outcome of a Write.
type Error int

const (
	ErrorNone Error = iota
	ErrorFailed
	ErrorRemoteClosedConnection
)

func (e Error) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorFailed:
		return "failed"
	case ErrorRemoteClosedConnection:
		return "remote closed connection"
	}
	return "unknown"
}

var (
	// ErrRemoteClosed reports that the sink went away.
	ErrRemoteClosed = errors.New("network: remote closed connection")
	// ErrWriteFailed reports a failed write to a live connection.
	ErrWriteFailed = errors.New("network: write failed")
	// ErrNotConnected reports a stream that is not, or no longer, ready to
	// carry packets.
	ErrNotConnected = errors.New("network: not connected")
)

// Err maps e to an error value; ErrorNone maps to nil.
func (e Error) Err() error {
	switch e {
	case ErrorNone:
		return nil
	case ErrorRemoteClosedConnection:
		return ErrRemoteClosed
	}
	return ErrWriteFailed
}

// Stream is a connected, message-oriented transport to one sink. Each Write
// sends one datagram of at most MaxUnitSize bytes.
type Stream interface {
	Connect(ctx context.Context, address string, port int) error
	WaitUntilReady(ctx context.Context) bool
	Write(data []byte, timestampUs int64) Error
	LocalPort() int
	MaxUnitSize() int
	Close() error
}
