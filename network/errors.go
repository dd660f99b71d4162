package network

import (
	"errors"
	"fmt"
)

// Kinds of link failure, reported through Sink.OnError wrapped in a
// *ConnectionError. Use errors.Is to classify.
var (
	// ErrConnectFailed: the connect handshake failed or was abandoned. The
	// link is Idle (unless superseded) and Connect may be retried.
	ErrConnectFailed = errors.New("unable to connect device")

	// ErrConnectionLost: an established session failed on read or write or
	// the peer closed it. The link is Idle; there is no automatic reconnect.
	ErrConnectionLost = errors.New("device connection was lost")

	// ErrSendQueueFull: the writer is stalled and the frame was dropped. The
	// link state is unchanged.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrCancelled: the connect attempt was superseded by Connect, Stop or Start.
	ErrCancelled = errors.New("connect attempt cancelled")
)

// ConnectionError describes a link failure.
type ConnectionError struct {
	Op   string // "connect", "read", "write", "send"
	Peer string
	Kind error // one of the Err* kinds above
	Err  error // underlying cause, may be nil
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Peer, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
