// Package event defines the link state, the events published by the
// connection supervisor, and the Sink interface presentation layers implement
// to receive them.
package event

import "fmt"

// State is the lifecycle state of the link to the peer.
type State int

const (
	Idle State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Type identifies the kind of event.
type Type int

const (
	StateChanged    Type = iota
	MessageReceived      // A complete inbound frame (trimmed, non-empty)
	MessageSent          // Bytes written to the peer
	DeviceName           // The peer's label, published once per established session
	Error                // Informational failure: connect failure, connection loss, send overflow
)

func (t Type) String() string {
	switch t {
	case StateChanged:
		return "state"
	case MessageReceived:
		return "message"
	case MessageSent:
		return "sent"
	case DeviceName:
		return "device"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Event is the universal packet published by the supervisor.
// Only the fields relevant to Type are set.
type Event struct {
	Type    Type
	State   State  // StateChanged
	Payload string // MessageReceived, DeviceName
	Data    []byte // MessageSent
	Err     error  // Error
}

// Sink receives link events. Implementations must be safe for use from a
// goroutine other than the one that created them.
type Sink interface {
	OnStateChanged(state State)
	OnMessage(text string)
	OnSent(data []byte)
	OnDeviceName(name string)
	OnError(err error)
}

// Deliver dispatches ev to the matching Sink method.
func Deliver(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	switch ev.Type {
	case StateChanged:
		sink.OnStateChanged(ev.State)
	case MessageReceived:
		sink.OnMessage(ev.Payload)
	case MessageSent:
		sink.OnSent(ev.Data)
	case DeviceName:
		sink.OnDeviceName(ev.Payload)
	case Error:
		sink.OnError(ev.Err)
	}
}
