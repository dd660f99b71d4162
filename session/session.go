// Package session ties the link, the console, the script engine and the
// device history together. One goroutine owns all of them; other goroutines
// reach it through Execute and Status.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/lua"
	"github.com/drake/carremote/peers"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/timer"
	"github.com/drake/carremote/ui"
)

// Ensure Session implements lua.Host at compile time
var _ lua.Host = (*Session)(nil)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNoPeer       = errors.New("no peer configured")
	ErrClosed       = errors.New("session closed")
)

// Link is the connection the session drives. *network.Supervisor satisfies it.
type Link interface {
	Start()
	Connect(peer string)
	Stop()
	Send(data []byte)
	State() event.State
	Peer() string
}

// Config holds session configuration.
type Config struct {
	Peer           string        // Default peer for connect and auto-connect
	AutoConnect    bool          // Connect at startup
	BatteryPoll    time.Duration // 0 disables polling
	StarterSeconds int           // Default for a bare "starter"
	Script         string        // Lua script loaded at boot, optional
}

// Status is a point-in-time view of the session.
type Status struct {
	State     event.State
	Peer      string
	Device    string
	Telemetry protocol.Telemetry
}

// Session orchestrates the car remote components.
type Session struct {
	// Components
	link    Link
	ui      ui.UI
	engine  *lua.Engine
	timer   *timer.Service
	history *peers.History
	log     *slog.Logger
	cfg     Config

	// Channels
	linkEvents  <-chan event.Event
	timerEvents chan timer.Event
	requests    chan func()

	// Owned by the session goroutine
	state     event.State
	peer      string
	device    string
	telemetry protocol.Telemetry

	// Published copy for Status
	statusMu sync.RWMutex
	status   Status

	// Shutdown coordination
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Session. It is passive - no goroutines start here.
// linkEvents must carry the events published by link; history may be nil.
func New(link Link, linkEvents <-chan event.Event, display ui.UI, history *peers.History, cfg Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.StarterSeconds == 0 {
		cfg.StarterSeconds = protocol.DefaultStarterSeconds
	}
	timerEvents := make(chan timer.Event, 256)

	s := &Session{
		link:        link,
		ui:          display,
		timer:       timer.NewService(timerEvents, log),
		history:     history,
		log:         log,
		cfg:         cfg,
		linkEvents:  linkEvents,
		timerEvents: timerEvents,
		requests:    make(chan func()),
		done:        make(chan struct{}),
	}
	s.engine = lua.NewEngine(s, log.With("component", "lua"))
	return s
}

// Run starts the session and blocks until the UI exits or Quit is called.
func (s *Session) Run() error {
	defer s.engine.Close()

	if err := s.boot(); err != nil {
		s.ui.Error(fmt.Errorf("boot: %w", err))
	}

	s.link.Start()
	if s.cfg.AutoConnect {
		if peer := s.defaultPeer(); peer != "" {
			s.log.Info("auto-connect", "peer", peer)
			s.link.Connect(peer)
		}
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.processEvents()
	}()

	err := s.ui.Run()
	s.shutdown()
	<-loopDone
	return err
}

// boot creates a fresh VM and loads the configured script.
func (s *Session) boot() error {
	if err := s.engine.Init(); err != nil {
		return err
	}
	if s.cfg.Script == "" {
		return nil
	}
	if err := s.engine.DoFile(s.cfg.Script); err != nil {
		return fmt.Errorf("%s: %w", s.cfg.Script, err)
	}
	s.log.Debug("script loaded", "path", s.cfg.Script)
	return nil
}

// processEvents is the main event loop.
func (s *Session) processEvents() {
	linkEvents := s.linkEvents
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-linkEvents:
			if !ok {
				linkEvents = nil
				continue
			}
			s.handleLinkEvent(ev)
		case line := <-s.ui.Input():
			if err := s.execute(line); err != nil {
				s.ui.Error(err)
			}
		case tev := <-s.timerEvents:
			s.handleTimer(tev)
		case req := <-s.requests:
			req()
		}
	}
}

// handleLinkEvent executes a single link event on the session loop.
func (s *Session) handleLinkEvent(ev event.Event) {
	switch ev.Type {
	case event.StateChanged:
		s.state = ev.State
		switch ev.State {
		case event.Idle:
			s.timer.CancelKind(timer.KindPoll)
			s.device = ""
			s.ui.ShowState(event.Idle, s.peer, "")
		case event.Connecting:
			s.peer = s.link.Peer()
			s.ui.ShowState(event.Connecting, s.peer, "")
		}
		// Connected is announced with the device name that follows it.
		s.engine.OnState(ev.State.String())

	case event.DeviceName:
		s.device = ev.Payload
		s.ui.ShowState(event.Connected, s.peer, s.device)
		s.rememberPeer()
		s.link.Send(protocol.Hello().Encode())
		s.startPolling()
		s.engine.OnDevice(ev.Payload)

	case event.MessageReceived:
		s.ui.Received(ev.Payload)
		s.engine.OnMessage(ev.Payload)
		if r, ok := protocol.ParseReading(ev.Payload); ok {
			if s.telemetry.Apply(r) {
				s.engine.OnReading(r.Field, r.Value)
			} else {
				s.log.Debug("unknown reading", "field", r.Field, "value", r.Value)
			}
		}

	case event.MessageSent:
		s.ui.Echo(ev.Data)
		s.engine.OnSent(string(ev.Data))

	case event.Error:
		s.log.Warn("link error", "err", ev.Err)
		s.ui.Error(ev.Err)
		s.engine.OnError(ev.Err.Error())
	}
	s.publishStatus()
}

func (s *Session) handleTimer(ev timer.Event) {
	switch ev.Kind {
	case timer.KindPoll:
		if s.state == event.Connected {
			s.link.Send(protocol.BatteryVoltage().Encode())
		}
	case timer.KindStarter:
		s.telemetry.Starter = false
		s.publishStatus()
	default:
		s.engine.OnTimer(ev.ID, ev.Repeating)
	}
}

// startPolling asks for the battery voltage now and every BatteryPoll while
// connected.
func (s *Session) startPolling() {
	s.timer.CancelKind(timer.KindPoll)
	if s.cfg.BatteryPoll <= 0 {
		return
	}
	s.link.Send(protocol.BatteryVoltage().Encode())
	s.timer.Every(timer.KindPoll, s.cfg.BatteryPoll)
}

func (s *Session) rememberPeer() {
	if s.history == nil || s.peer == "" {
		return
	}
	s.history.Touch(s.peer, s.device)
	if err := s.history.Save(); err != nil {
		s.log.Warn("saving peer history", "err", err)
	}
}

// defaultPeer is the configured peer, else the most recent one.
func (s *Session) defaultPeer() string {
	if s.cfg.Peer != "" {
		return s.cfg.Peer
	}
	if s.history != nil {
		if p, ok := s.history.Last(); ok {
			return p.Address
		}
	}
	return ""
}

func (s *Session) publishStatus() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = Status{
		State:     s.state,
		Peer:      s.peer,
		Device:    s.device,
		Telemetry: s.telemetry,
	}
}

// Status returns the latest published status. Safe from any goroutine.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Execute runs a console command on the session goroutine and returns its
// result. Safe from any goroutine.
func (s *Session) Execute(ctx context.Context, line string) error {
	result := make(chan error, 1)
	req := func() { result <- s.execute(line) }

	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The loop has taken req and always answers.
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Quit stops the session.
func (s *Session) Quit() {
	s.shutdown()
}

// shutdown stops timers and the link and requests UI exit.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.timer.CancelAll()
		s.link.Stop()
		s.ui.Quit()
	})
}
