// Package transport defines the byte-stream connection the link runs over and
// provides concrete implementations: Bluetooth RFCOMM (BlueZ), TCP, serial
// ports, and an in-memory loopback.
//
// The link layer assumes nothing beyond blocking Read/Write and an idempotent
// Close that unblocks pending I/O.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Failure classes for Open. Implementations wrap one of these so callers can
// use errors.Is.
var (
	// ErrPermissionDenied means the process lacks authorization for the
	// transport operation. Retrying will not help without external action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnreachable means the peer could not be reached or does not exist.
	ErrUnreachable = errors.New("peer unreachable")

	// ErrIO is any other I/O failure during connection setup.
	ErrIO = errors.New("i/o failure")
)

// Conn is one live session with a peer.
//
// Close must be idempotent and safe to call while another goroutine is
// blocked in Read or Write; it must make those calls return.
type Conn interface {
	io.ReadWriteCloser

	// Peer returns the address the connection was opened with.
	Peer() string

	// Label returns a human friendly device name, or the address if unknown.
	Label() string
}

// Deadliner is implemented by connections that support I/O deadlines.
type Deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Transport opens connections to peers.
type Transport interface {
	// Open performs a blocking connect-and-handshake. Cancelling ctx aborts it.
	Open(ctx context.Context, peer string) (Conn, error)
}

// Kinds accepted by ForName.
const (
	KindRFCOMM = "rfcomm"
	KindTCP    = "tcp"
	KindSerial = "serial"
	KindSim    = "sim"
)

// Options carries the settings ForName needs to build a transport.
type Options struct {
	Logger   *slog.Logger
	BaudRate int

	// Handler serves the far end of loopback connections (KindSim).
	Handler Handler
}

// ForName builds the transport registered under kind.
func ForName(kind string, opts Options) (Transport, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	switch kind {
	case KindRFCOMM, "bluetooth", "":
		return NewRFCOMM(opts.Logger), nil
	case KindTCP:
		return NewTCP(), nil
	case KindSerial:
		return NewSerial(opts.BaudRate), nil
	case KindSim, "loopback":
		if opts.Handler == nil {
			return nil, fmt.Errorf("transport: %s requires a handler", kind)
		}
		return NewLoopback(opts.Handler), nil
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", kind)
	}
}
