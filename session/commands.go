package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/timer"
)

const helpText = `commands:
  connect [peer]     connect to peer (default: configured or last device)
  disconnect         close the connection
  status             show link state and telemetry
  peers              list recent devices
  raw <text>         send wire text as is
  toggle <control>   flip engine, boost, acc or ignition
  lua <code>         run Lua code
  reload             reload the startup script
  quit               exit
  engine on|off, boost high|low, acc on|off, ignition on|off,
  starter [seconds], battery`

// execute runs one console command. Runs on the session goroutine.
func (s *Session) execute(line string) error {
	defer s.publishStatus()

	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "connect":
		return s.connect(rest)
	case "disconnect":
		s.Disconnect()
		return nil
	case "status":
		s.ui.ShowState(s.state, s.peer, s.device)
		s.ui.ShowTelemetry(s.telemetry)
		return nil
	case "peers":
		if s.history == nil {
			s.ui.ShowPeers(nil)
			return nil
		}
		s.ui.ShowPeers(s.history.Recent())
		return nil
	case "raw":
		if rest == "" {
			return fmt.Errorf("raw: missing text")
		}
		return s.sendRaw(rest + "\n")
	case "toggle":
		cmd, err := s.telemetry.Toggle(rest)
		if err != nil {
			return err
		}
		return s.sendCommand(cmd)
	case "lua":
		return s.engine.DoString("console", rest)
	case "reload":
		return s.boot()
	case "help", "?":
		s.ui.Print(helpText)
		return nil
	case "quit", "exit":
		s.shutdown()
		return nil
	}

	cmd, err := protocol.ParseCommand(line, s.cfg.StarterSeconds)
	if err != nil {
		return err
	}
	return s.sendCommand(cmd)
}

func (s *Session) connect(peer string) error {
	if peer == "" {
		peer = s.defaultPeer()
	}
	if peer == "" {
		return ErrNoPeer
	}
	s.link.Connect(peer)
	return nil
}

// sendCommand writes cmd to the device. A starter command also marks the
// starter as running locally until its duration elapses.
func (s *Session) sendCommand(cmd protocol.Command) error {
	if err := s.sendRaw(string(cmd.Encode())); err != nil {
		return err
	}
	if cmd.Verb == protocol.VerbStarterOn {
		if n, err := strconv.Atoi(cmd.Arg); err == nil {
			s.telemetry.Starter = true
			s.timer.CancelKind(timer.KindStarter)
			s.timer.After(timer.KindStarter, time.Duration(n)*time.Second)
		}
	}
	return nil
}

// sendRaw checks the link locally so the user gets feedback; the link would
// drop the data anyway.
func (s *Session) sendRaw(data string) error {
	if s.state != event.Connected {
		return ErrNotConnected
	}
	s.link.Send([]byte(data))
	return nil
}
