package lua

import (
	"time"

	"github.com/drake/carremote/protocol"
)

// Snapshot is the session state exposed to scripts.
type Snapshot struct {
	State     string // "idle", "connecting" or "connected"
	Peer      string
	Device    string
	Telemetry protocol.Telemetry
}

// Host provides the bridge between Engine and the rest of the system.
// This abstraction decouples Engine from the session, making it testable
// without a device.
type Host interface {
	// IO
	Print(text string)
	Send(data string)
	Command(phrase string) error

	// Link
	Connect(peer string)
	Disconnect()

	// Timers - the timer service owns IDs, scheduling and cancellation
	TimerAfter(d time.Duration) int
	TimerEvery(d time.Duration) int
	TimerCancel(id int)
	TimerCancelAll()

	// State
	Snapshot() Snapshot
}
