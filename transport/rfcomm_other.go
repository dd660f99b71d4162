//go:build !linux

package transport

import (
	"context"
	"fmt"
	"log/slog"
)

// RFCOMM is only implemented on Linux (BlueZ). Elsewhere, bind the device to a
// serial port and use the serial transport instead.
type RFCOMM struct {
	log *slog.Logger
}

// NewRFCOMM creates the placeholder transport.
func NewRFCOMM(log *slog.Logger) *RFCOMM {
	return &RFCOMM{log: log}
}

// Open always fails on this platform.
func (r *RFCOMM) Open(ctx context.Context, peer string) (Conn, error) {
	return nil, fmt.Errorf("rfcomm: %w: not supported on this platform", ErrUnreachable)
}

// Close is a no-op.
func (r *RFCOMM) Close() error { return nil }
