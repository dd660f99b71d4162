package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// TCP reaches peers behind a TCP bridge (e.g. an ESP32 serial-to-WiFi module).
// The peer string is a host:port address.
type TCP struct {
	KeepAlive time.Duration
}

// NewTCP creates a TCP transport with a 30s keep-alive period.
func NewTCP() *TCP {
	return &TCP{KeepAlive: 30 * time.Second}
}

// Open dials the peer.
func (t *TCP) Open(ctx context.Context, peer string) (Conn, error) {
	d := net.Dialer{KeepAlive: t.KeepAlive}
	conn, err := d.DialContext(ctx, "tcp", peer)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", peer, classifyNetError(err))
	}

	// Keep-alive detects dropped connections on otherwise quiet links
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(t.KeepAlive)
	}

	return &netConn{Conn: conn, peer: peer}, nil
}

// netConn adapts a net.Conn to Conn. net.Conn already satisfies Deadliner
// and allows Close concurrent with Read/Write.
type netConn struct {
	net.Conn
	peer  string
	label string

	closeOnce sync.Once
	closeErr  error
}

func (c *netConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

func (c *netConn) Peer() string { return c.peer }

func (c *netConn) Label() string {
	if c.label != "" {
		return c.label
	}
	return c.peer
}

// classifyNetError wraps err with the matching failure class.
func classifyNetError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
}
