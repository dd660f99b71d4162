package transport

import (
	"context"
	"net"
	"sync"
)

// Handler serves the far end of a loopback connection. It owns remote and
// should return when remote reports an error (the near end closed).
type Handler func(peer string, remote net.Conn)

// Loopback is an in-memory transport built on net.Pipe. Each Open spawns the
// handler on the far end, which makes it suitable for simulators and tests.
type Loopback struct {
	handler Handler

	// Label reported by every connection; defaults to the peer string.
	DeviceLabel string

	mu    sync.Mutex
	opens int
}

// NewLoopback creates a loopback transport served by h.
func NewLoopback(h Handler) *Loopback {
	return &Loopback{handler: h}
}

// Open returns the near end of a new pipe.
func (l *Loopback) Open(ctx context.Context, peer string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local, remote := net.Pipe()
	l.mu.Lock()
	l.opens++
	l.mu.Unlock()

	go l.handler(peer, remote)

	return &netConn{Conn: local, peer: peer, label: l.DeviceLabel}, nil
}

// Opens reports how many connections have been opened.
func (l *Loopback) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}
