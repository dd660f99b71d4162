package lua

import (
	"sync"
	"time"

	"github.com/drake/carremote/protocol"
)

// MockHost implements Host for testing.
type MockHost struct {
	mu sync.Mutex

	// Captured calls
	SendCalls       []string
	CommandCalls    []string
	PrintCalls      []string
	ConnectCalls    []string
	DisconnectCalls int
	CancelledTimers []int
	ScheduledTimers []struct {
		ID       int
		Duration time.Duration
		Repeat   bool
	}

	// Returned by Snapshot
	State Snapshot

	// Returned by Command when set
	CommandErr error

	nextTimerID int
}

func NewMockHost() *MockHost {
	return &MockHost{State: Snapshot{State: "idle"}}
}

func (m *MockHost) Send(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendCalls = append(m.SendCalls, data)
}

func (m *MockHost) Command(phrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommandErr != nil {
		return m.CommandErr
	}
	if _, err := protocol.ParseCommand(phrase, protocol.DefaultStarterSeconds); err != nil {
		return err
	}
	m.CommandCalls = append(m.CommandCalls, phrase)
	return nil
}

func (m *MockHost) Print(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrintCalls = append(m.PrintCalls, text)
}

func (m *MockHost) Connect(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls = append(m.ConnectCalls, peer)
}

func (m *MockHost) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
}

func (m *MockHost) TimerAfter(d time.Duration) int {
	return m.schedule(d, false)
}

func (m *MockHost) TimerEvery(d time.Duration) int {
	return m.schedule(d, true)
}

func (m *MockHost) schedule(d time.Duration, repeat bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTimerID++
	m.ScheduledTimers = append(m.ScheduledTimers, struct {
		ID       int
		Duration time.Duration
		Repeat   bool
	}{m.nextTimerID, d, repeat})
	return m.nextTimerID
}

func (m *MockHost) TimerCancel(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelledTimers = append(m.CancelledTimers, id)
}

func (m *MockHost) TimerCancelAll() {}

func (m *MockHost) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State
}
