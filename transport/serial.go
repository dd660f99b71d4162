package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the factory setting of HC-05/HC-06 SPP modules.
const DefaultBaudRate = 9600

// Serial opens serial ports: USB adapters, or /dev/rfcommN devices bound
// with rfcomm(1). The peer string is a port path with an optional baud rate
// suffix, e.g. "/dev/ttyUSB0@115200".
type Serial struct {
	BaudRate int

	// open is swapped in tests.
	open func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerial creates a serial transport. baud <= 0 selects DefaultBaudRate.
func NewSerial(baud int) *Serial {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &Serial{BaudRate: baud, open: serial.Open}
}

// Open opens the port in 8N1 mode. Opening a port does not block on the peer,
// so ctx is only checked before and after.
func (s *Serial) Open(ctx context.Context, peer string) (Conn, error) {
	path, baud, err := parseSerialPeer(peer, s.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("serial: %w: %w", ErrUnreachable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := s.open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, classifySerialError(err))
	}
	if err := ctx.Err(); err != nil {
		port.Close()
		return nil, err
	}

	return &serialConn{port: port, peer: peer, path: path}, nil
}

// parseSerialPeer splits "path@baud".
func parseSerialPeer(peer string, fallback int) (string, int, error) {
	path, rate, found := strings.Cut(peer, "@")
	if path == "" {
		return "", 0, errors.New("empty port path")
	}
	if !found {
		return path, fallback, nil
	}
	baud, err := strconv.Atoi(rate)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("invalid baud rate %q", rate)
	}
	return path, baud, nil
}

func classifySerialError(err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		case serial.PortNotFound, serial.PortBusy, serial.InvalidSerialPort:
			return fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// serialConn adapts a serial.Port to Conn.
type serialConn struct {
	port serial.Port
	peer string
	path string

	closeOnce sync.Once
	closeErr  error
}

func (c *serialConn) Read(p []byte) (int, error)  { return c.port.Read(p) }
func (c *serialConn) Write(p []byte) (int, error) { return c.port.Write(p) }
func (c *serialConn) Peer() string                { return c.peer }
func (c *serialConn) Label() string               { return c.path }

func (c *serialConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}
