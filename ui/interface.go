package ui

import (
	"github.com/drake/carremote/event"
	"github.com/drake/carremote/peers"
	"github.com/drake/carremote/protocol"
)

// UI defines the contract for the display layer. All methods are called
// from the session goroutine except Run, Quit and Done.
type UI interface {
	Run() error
	Quit()
	Done() <-chan struct{}

	// Input/Output
	Input() <-chan string
	Print(text string)
	Echo(data []byte)
	Received(frame string)
	Error(err error)

	// Views
	ShowState(state event.State, peer, device string)
	ShowTelemetry(t protocol.Telemetry)
	ShowPeers(list []peers.Peer)
}
