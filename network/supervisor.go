package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/internal/buffer"
	"github.com/drake/carremote/transport"
)

// Defaults for the Supervisor options.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultSendQueue      = 64

	// eventBacklogLimit bounds undelivered events if the sink stops consuming.
	eventBacklogLimit = 100000
)

var errEmptyPeer = errors.New("empty peer address")

// Supervisor owns the link to one peer at a time. It runs the blocking connect
// handshake, the read loop and the write loop on their own goroutines,
// serializes every state transition behind one mutex, and publishes what
// happens to an event.Sink.
//
// No method blocks on transport I/O and no failure is returned to the caller:
// every outcome is an event. Events are delivered in the order they are
// generated, from a single dispatcher goroutine, so sinks may call back into
// the Supervisor.
type Supervisor struct {
	transport transport.Transport
	log       *slog.Logger

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	sendQueueSize  int
	chunkSize      int

	// State protection. Never held across transport I/O.
	mu      sync.Mutex
	state   event.State
	peer    string
	attempt *attempt    // The connect attempt in flight, or nil
	current *connection // The established session, or nil
	closed  bool

	// Ordered event delivery
	events       chan<- event.Event
	dispatchDone chan struct{}

	// Stats (atomic for lock-free reads)
	bytesRead      atomic.Uint64
	bytesWritten   atomic.Uint64
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
	connects       atomic.Uint64
	connectFails   atomic.Uint64
	losses         atomic.Uint64
	lastReadTime   atomic.Int64 // Unix nano
}

// attempt is one run of the connector goroutine.
type attempt struct {
	peer   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// connection represents a single, ephemeral session with the peer.
// It is created when a connect attempt succeeds and discarded on teardown.
// The reader and writer receive it at spawn and never look up the current one.
type connection struct {
	conn transport.Conn
	peer string

	// Cancelled on teardown to stop both workers
	ctx    context.Context
	cancel context.CancelFunc

	// Buffered queue for outgoing frames specific to this connection
	sendQueue chan []byte

	closeOnce sync.Once
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithConnectTimeout bounds the connect handshake. 0 disables the bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.connectTimeout = d }
}

// WithReadTimeout treats a peer silent for longer than d as lost. 0 (the
// default) waits forever. Needs a transport.Deadliner connection.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.readTimeout = d }
}

// WithWriteTimeout bounds each write. 0 waits forever. Needs a
// transport.Deadliner connection.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.writeTimeout = d }
}

// WithSendQueue sets how many frames may wait for the writer.
func WithSendQueue(n int) Option {
	return func(s *Supervisor) { s.sendQueueSize = n }
}

// WithChunkSize sets the size of each raw read.
func WithChunkSize(n int) Option {
	return func(s *Supervisor) { s.chunkSize = n }
}

// New creates an Idle supervisor that opens connections through t and
// publishes to sink. Call Close to release it.
func New(t transport.Transport, sink event.Sink, opts ...Option) *Supervisor {
	s := &Supervisor{
		transport:      t,
		connectTimeout: DefaultConnectTimeout,
		writeTimeout:   DefaultWriteTimeout,
		sendQueueSize:  DefaultSendQueue,
		chunkSize:      DefaultChunkSize,
		state:          event.Idle,
		dispatchDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.sendQueueSize <= 0 {
		s.sendQueueSize = 1
	}

	in, out := buffer.Unbounded[event.Event](64, eventBacklogLimit, func(ev event.Event) {
		s.log.Warn("event backlog full, dropping oldest", "type", ev.Type)
	})
	s.events = in
	go s.dispatch(out, sink)

	return s
}

// State returns the current link state.
func (s *Supervisor) State() event.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer returns the address of the current or most recent connect request.
func (s *Supervisor) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Start resets the link to Idle, cancelling any connect attempt and closing
// any session, and publishes StateChanged(Idle). Idempotent.
func (s *Supervisor) Start() {
	s.log.Debug("start")
	s.reset()
}

// Stop cancels any connect attempt, closes the session, and publishes exactly
// one StateChanged(Idle). Safe from any state.
func (s *Supervisor) Stop() {
	s.log.Info("stop", "peer", s.Peer())
	s.reset()
}

func (s *Supervisor) reset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	stale := s.detachLocked()
	s.setStateLocked(event.Idle)
	s.mu.Unlock()

	if stale != nil {
		stale.close()
	}
}

// Connect starts connecting to peer on a new connector goroutine and moves to
// Connecting. A pending attempt is cancelled (last request wins) and an
// established session is torn down first. The outcome arrives as events:
// StateChanged(Connected) + DeviceName, or an Error wrapping ErrConnectFailed
// followed by StateChanged(Idle).
func (s *Supervisor) Connect(peer string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	prev := s.attempt
	if prev != nil {
		s.log.Info("cancelling pending connect", "peer", prev.peer)
	}
	stale := s.detachLocked()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.connectTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.connectTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	a := &attempt{peer: peer, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.attempt = a
	s.peer = peer
	s.setStateLocked(event.Connecting)
	s.mu.Unlock()

	if stale != nil {
		stale.close()
	}

	s.connects.Add(1)
	go s.connect(a, prev)
}

// Send queues data for the writer. It is silently dropped unless the link is
// Connected. No framing is added; callers include the trailing newline.
// Send never blocks: if the writer is stalled and the queue is full, an Error
// wrapping ErrSendQueueFull is published and data is dropped.
func (s *Supervisor) Send(data []byte) {
	if len(data) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cx := s.current
	if s.state != event.Connected || cx == nil {
		return
	}

	frame := append([]byte(nil), data...)
	select {
	case cx.sendQueue <- frame:
	default:
		s.emitLocked(event.Event{Type: event.Error, Err: &ConnectionError{
			Op: "send", Peer: cx.peer, Kind: ErrSendQueueFull,
		}})
	}
}

// Close stops the link and waits until every generated event has been
// delivered. Later calls are no-ops. Close must not be called from a Sink
// callback.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.dispatchDone
		return
	}
	stale := s.detachLocked()
	if s.state != event.Idle {
		s.setStateLocked(event.Idle)
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	if stale != nil {
		stale.close()
	}
	<-s.dispatchDone
}

// --- Worker Routines ---

// connect runs one attempt. It waits for the attempt it superseded to finish
// so that attempt's connection is closed before this one opens.
func (s *Supervisor) connect(a *attempt, prev *attempt) {
	defer close(a.done)
	defer a.cancel()

	if prev != nil {
		<-prev.done
	}

	if a.peer == "" {
		s.connectFailed(a, errEmptyPeer)
		return
	}

	s.log.Info("connecting", "peer", a.peer)
	conn, err := s.transport.Open(a.ctx, a.peer)
	if err != nil {
		s.connectFailed(a, err)
		return
	}
	s.connected(a, conn)
}

// connected promotes a successful attempt to the current session.
func (s *Supervisor) connected(a *attempt, conn transport.Conn) {
	s.mu.Lock()
	if s.attempt != a {
		// Superseded while the handshake was completing.
		s.emitLocked(event.Event{Type: event.Error, Err: &ConnectionError{
			Op: "connect", Peer: a.peer, Kind: ErrConnectFailed, Err: ErrCancelled,
		}})
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.attempt = nil
	stale := s.current

	ctx, cancel := context.WithCancel(context.Background())
	cx := &connection{
		conn:      conn,
		peer:      a.peer,
		ctx:       ctx,
		cancel:    cancel,
		sendQueue: make(chan []byte, s.sendQueueSize),
	}
	s.current = cx
	s.setStateLocked(event.Connected)
	s.emitLocked(event.Event{Type: event.DeviceName, Payload: conn.Label()})
	s.mu.Unlock()

	if stale != nil {
		stale.close()
	}

	s.log.Info("connected", "peer", a.peer, "device", conn.Label())
	go s.readLoop(cx)
	go s.writeLoop(cx)
}

// connectFailed reports a failed attempt. Only the current attempt moves the
// link back to Idle; a superseded one just reports its cancellation.
func (s *Supervisor) connectFailed(a *attempt, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isCurrent := s.attempt == a
	if !isCurrent {
		err = ErrCancelled
	}
	s.connectFails.Add(1)
	s.log.Warn("connect failed", "peer", a.peer, "err", err)

	s.emitLocked(event.Event{Type: event.Error, Err: &ConnectionError{
		Op: "connect", Peer: a.peer, Kind: ErrConnectFailed, Err: err,
	}})
	if isCurrent {
		s.attempt = nil
		s.setStateLocked(event.Idle)
	}
}

// readLoop reads frames from a specific connection until it fails or is torn down.
func (s *Supervisor) readLoop(cx *connection) {
	var src io.Reader = cx.conn
	if d, ok := cx.conn.(transport.Deadliner); ok && s.readTimeout > 0 {
		src = &deadlineReader{r: cx.conn, d: d, timeout: s.readTimeout}
	}
	frames := NewFrameReader(src, s.chunkSize)
	frames.onRead = func(n int) {
		s.bytesRead.Add(uint64(n))
		s.lastReadTime.Store(time.Now().UnixNano())
	}

	for {
		frame, err := frames.Next(cx.ctx)
		if err != nil {
			s.lost(cx, "read", err)
			return
		}

		s.framesReceived.Add(1)
		s.mu.Lock()
		if s.current != cx {
			s.mu.Unlock()
			return
		}
		s.emitLocked(event.Event{Type: event.MessageReceived, Payload: frame})
		s.mu.Unlock()

		s.log.Debug("received", "peer", cx.peer, "frame", frame)
	}
}

// writeLoop handles outgoing frames for a specific connection.
func (s *Supervisor) writeLoop(cx *connection) {
	d, hasDeadline := cx.conn.(transport.Deadliner)

	for {
		select {
		case <-cx.ctx.Done():
			return
		case data := <-cx.sendQueue:
			if hasDeadline && s.writeTimeout > 0 {
				d.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			n, err := cx.conn.Write(data)
			if err != nil {
				s.lost(cx, "write", err)
				return
			}
			s.bytesWritten.Add(uint64(n))
			s.framesSent.Add(1)

			s.mu.Lock()
			if s.current != cx {
				s.mu.Unlock()
				return
			}
			s.emitLocked(event.Event{Type: event.MessageSent, Data: data})
			s.mu.Unlock()
		}
	}
}

// lost handles a read or write failure. Only the current session reports it;
// a session that was torn down deliberately exits silently.
func (s *Supervisor) lost(cx *connection, op string, err error) {
	s.mu.Lock()
	if s.current != cx {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.losses.Add(1)
	s.log.Warn("connection lost", "peer", cx.peer, "op", op, "err", err)
	s.emitLocked(event.Event{Type: event.Error, Err: &ConnectionError{
		Op: op, Peer: cx.peer, Kind: ErrConnectionLost, Err: err,
	}})
	s.setStateLocked(event.Idle)
	s.mu.Unlock()

	cx.close()
}

// dispatch delivers events to the sink in generation order.
func (s *Supervisor) dispatch(events <-chan event.Event, sink event.Sink) {
	defer close(s.dispatchDone)
	for ev := range events {
		event.Deliver(sink, ev)
	}
}

// --- Locked helpers (s.mu held) ---

// detachLocked cancels the pending attempt and detaches the current session.
// The caller closes the returned session after releasing the lock.
func (s *Supervisor) detachLocked() *connection {
	if s.attempt != nil {
		s.attempt.cancel()
		s.attempt = nil
	}
	stale := s.current
	s.current = nil
	return stale
}

func (s *Supervisor) setStateLocked(state event.State) {
	if s.state != state {
		s.log.Debug("state", "from", s.state, "to", state)
	}
	s.state = state
	s.emitLocked(event.Event{Type: event.StateChanged, State: state})
}

func (s *Supervisor) emitLocked(ev event.Event) {
	if s.closed {
		return
	}
	s.events <- ev
}

// close tears the connection down exactly once: it stops both workers and
// closes the stream, which unblocks a pending read or write.
func (cx *connection) close() {
	cx.closeOnce.Do(func() {
		cx.cancel()
		cx.conn.Close()
	})
}

// deadlineReader arms a read deadline before every read.
type deadlineReader struct {
	r       io.Reader
	d       transport.Deadliner
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	r.d.SetReadDeadline(time.Now().Add(r.timeout))
	return r.r.Read(p)
}
