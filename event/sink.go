package event

import (
	"sync"

	"github.com/drake/carremote/internal/buffer"
)

// Channel adapts Sink callbacks into an ordered stream of Events.
// Producers never block: events queue in an unbounded buffer until read.
type Channel struct {
	mu     sync.Mutex
	in     chan<- Event
	out    <-chan Event
	closed bool
}

// NewChannel creates a Channel sink. hardLimit bounds the backlog of unread
// events (0 means unbounded); beyond it the oldest events are dropped.
func NewChannel(hardLimit int) *Channel {
	in, out := buffer.Unbounded[Event](64, hardLimit, nil)
	return &Channel{in: in, out: out}
}

// Events returns the stream. It closes after Close once the backlog drains.
func (c *Channel) Events() <-chan Event {
	return c.out
}

// Close stops accepting events. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
}

func (c *Channel) push(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.in <- ev
}

func (c *Channel) OnStateChanged(state State) { c.push(Event{Type: StateChanged, State: state}) }
func (c *Channel) OnMessage(text string)      { c.push(Event{Type: MessageReceived, Payload: text}) }
func (c *Channel) OnDeviceName(name string)   { c.push(Event{Type: DeviceName, Payload: name}) }
func (c *Channel) OnError(err error)          { c.push(Event{Type: Error, Err: err}) }

func (c *Channel) OnSent(data []byte) {
	c.push(Event{Type: MessageSent, Data: append([]byte(nil), data...)})
}

// Multi fans every event out to each sink, in argument order.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return multi(live)
}

type multi []Sink

func (m multi) OnStateChanged(state State) {
	for _, s := range m {
		s.OnStateChanged(state)
	}
}

func (m multi) OnMessage(text string) {
	for _, s := range m {
		s.OnMessage(text)
	}
}

func (m multi) OnSent(data []byte) {
	for _, s := range m {
		s.OnSent(data)
	}
}

func (m multi) OnDeviceName(name string) {
	for _, s := range m {
		s.OnDeviceName(name)
	}
}

func (m multi) OnError(err error) {
	for _, s := range m {
		s.OnError(err)
	}
}

// Funcs implements Sink with optional callbacks. Nil fields are ignored.
type Funcs struct {
	StateChanged func(State)
	Message      func(string)
	Sent         func([]byte)
	DeviceName   func(string)
	Error        func(error)
}

func (f Funcs) OnStateChanged(state State) {
	if f.StateChanged != nil {
		f.StateChanged(state)
	}
}

func (f Funcs) OnMessage(text string) {
	if f.Message != nil {
		f.Message(text)
	}
}

func (f Funcs) OnSent(data []byte) {
	if f.Sent != nil {
		f.Sent(data)
	}
}

func (f Funcs) OnDeviceName(name string) {
	if f.DeviceName != nil {
		f.DeviceName(name)
	}
}

func (f Funcs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}
