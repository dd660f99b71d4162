package session

import (
	"time"

	"github.com/drake/carremote/lua"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/timer"
)

// Print implements lua.Host.
func (s *Session) Print(text string) { s.ui.Print(text) }

// Send implements lua.Host.
func (s *Session) Send(data string) {
	if err := s.sendRaw(data); err != nil {
		s.ui.Error(err)
	}
}

// Command implements lua.Host.
func (s *Session) Command(phrase string) error {
	cmd, err := protocol.ParseCommand(phrase, s.cfg.StarterSeconds)
	if err != nil {
		return err
	}
	return s.sendCommand(cmd)
}

// Connect implements lua.Host.
func (s *Session) Connect(peer string) {
	if err := s.connect(peer); err != nil {
		s.ui.Error(err)
	}
}

// Disconnect implements lua.Host.
func (s *Session) Disconnect() {
	s.link.Stop()
}

// TimerAfter implements lua.Host.
func (s *Session) TimerAfter(d time.Duration) int {
	return s.timer.After(timer.KindScript, d)
}

// TimerEvery implements lua.Host.
func (s *Session) TimerEvery(d time.Duration) int {
	return s.timer.Every(timer.KindScript, d)
}

// TimerCancel implements lua.Host.
func (s *Session) TimerCancel(id int) {
	s.timer.Cancel(id)
}

// TimerCancelAll implements lua.Host. Only script timers are affected.
func (s *Session) TimerCancelAll() {
	s.timer.CancelKind(timer.KindScript)
}

// Snapshot implements lua.Host.
func (s *Session) Snapshot() lua.Snapshot {
	return lua.Snapshot{
		State:     s.state.String(),
		Peer:      s.peer,
		Device:    s.device,
		Telemetry: s.telemetry,
	}
}
