// Package publish mirrors link events into Redis: a hash per peer holding the
// latest state and readings, and a pub/sub channel carrying every event.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/internal/buffer"
	"github.com/drake/carremote/protocol"
)

const (
	DefaultPrefix  = "carremote"
	DefaultTimeout = 2 * time.Second
	backlogLimit   = 10000
)

// Message is the JSON published on <prefix>:events.
type Message struct {
	Type    string    `json:"type"`
	Peer    string    `json:"peer,omitempty"`
	State   string    `json:"state,omitempty"`
	Payload string    `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

type record struct {
	ev   event.Event
	peer string
	at   time.Time
}

// Redis implements event.Sink. Callbacks only queue; a single worker talks
// to Redis so a slow server never stalls the link.
type Redis struct {
	client     *backend.Client
	ownsClient bool
	prefix     string
	timeout    time.Duration
	log        *slog.Logger

	peerMu sync.RWMutex
	peerOf func() string

	in      chan<- record
	out     <-chan record
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

var _ event.Sink = (*Redis)(nil)

type Option func(*Redis)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithLogger sets the logger for Redis failures.
func WithLogger(log *slog.Logger) Option {
	return func(r *Redis) {
		if log != nil {
			r.log = log
		}
	}
}

// WithTimeout bounds each Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(r *Redis) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPeerSource sets the function naming the current peer.
func WithPeerSource(fn func() string) Option {
	return func(r *Redis) { r.peerOf = fn }
}

// New connects to the Redis server at addr. Close also closes the client.
func New(addr, password string, db int, opts ...Option) *Redis {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	r := NewFromClient(client, opts...)
	r.ownsClient = true
	return r
}

// NewFromClient publishes through an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Redis {
	r := &Redis{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
		log:     slog.New(slog.DiscardHandler),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.in, r.out = buffer.Unbounded[record](64, backlogLimit, func(rec record) {
		r.log.Warn("redis backlog full, dropping event", "type", rec.ev.Type)
	})
	go r.run()
	return r
}

// SetPeerSource replaces the peer source after construction, for when the
// link is built after its sinks.
func (r *Redis) SetPeerSource(fn func() string) {
	r.peerMu.Lock()
	defer r.peerMu.Unlock()
	r.peerOf = fn
}

// EventsChannel is the pub/sub channel name.
func (r *Redis) EventsChannel() string { return r.prefix + ":events" }

// PeerKey is the hash holding the latest state of peer.
func (r *Redis) PeerKey(peer string) string { return r.prefix + ":" + peer }

func (r *Redis) OnStateChanged(state event.State) {
	r.push(event.Event{Type: event.StateChanged, State: state})
}

func (r *Redis) OnMessage(text string) {
	r.push(event.Event{Type: event.MessageReceived, Payload: text})
}

func (r *Redis) OnSent(data []byte) {
	r.push(event.Event{Type: event.MessageSent, Data: append([]byte(nil), data...)})
}

func (r *Redis) OnDeviceName(name string) {
	r.push(event.Event{Type: event.DeviceName, Payload: name})
}

func (r *Redis) OnError(err error) {
	r.push(event.Event{Type: event.Error, Err: err})
}

func (r *Redis) push(ev event.Event) {
	rec := record{ev: ev, peer: r.currentPeer(), at: time.Now()}

	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.in <- rec
}

func (r *Redis) currentPeer() string {
	r.peerMu.RLock()
	defer r.peerMu.RUnlock()
	if r.peerOf == nil {
		return ""
	}
	return r.peerOf()
}

// Close flushes queued events and stops the worker.
func (r *Redis) Close() error {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.in)
	}
	r.closeMu.Unlock()

	<-r.done
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

func (r *Redis) run() {
	defer close(r.done)
	for rec := range r.out {
		if err := r.publish(rec); err != nil {
			r.log.Warn("redis publish failed", "type", rec.ev.Type, "err", err)
		}
	}
}

func (r *Redis) publish(rec record) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	msg := toMessage(rec)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publish: marshal: %w", err)
	}

	pipe := r.client.Pipeline()
	fields := hashFields(rec)
	if rec.peer != "" && len(fields) > 0 {
		pipe.HSet(ctx, r.PeerKey(rec.peer), fields)
	} else if rec.ev.Type == event.MessageReceived {
		r.log.Debug("frame not stored in peer hash", "frame", rec.ev.Payload)
	}
	pipe.Publish(ctx, r.EventsChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func toMessage(rec record) Message {
	msg := Message{Peer: rec.peer, Time: rec.at.UTC()}
	switch rec.ev.Type {
	case event.StateChanged:
		msg.Type = "state"
		msg.State = rec.ev.State.String()
	case event.MessageReceived:
		msg.Type = "message"
		msg.Payload = rec.ev.Payload
	case event.MessageSent:
		msg.Type = "sent"
		msg.Payload = string(rec.ev.Data)
	case event.DeviceName:
		msg.Type = "device"
		msg.Payload = rec.ev.Payload
	case event.Error:
		msg.Type = "error"
		if rec.ev.Err != nil {
			msg.Error = rec.ev.Err.Error()
		}
	}
	return msg
}

// hashFields returns what the event changes in the peer hash.
func hashFields(rec record) map[string]any {
	updated := rec.at.UTC().Format(time.RFC3339Nano)
	switch rec.ev.Type {
	case event.StateChanged:
		return map[string]any{"state": rec.ev.State.String(), "updated": updated}
	case event.DeviceName:
		return map[string]any{"device": rec.ev.Payload, "updated": updated}
	case event.MessageReceived:
		if reading, ok := protocol.ParseReading(rec.ev.Payload); ok && protocol.KnownField(reading.Field) {
			return map[string]any{reading.Field: reading.Value, "updated": updated}
		}
	case event.Error:
		if rec.ev.Err != nil {
			return map[string]any{"last_error": rec.ev.Err.Error(), "updated": updated}
		}
	}
	return nil
}
