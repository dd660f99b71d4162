// Package timer turns wall-clock deadlines into events on a channel so that
// a single event loop can own everything a timer callback touches.
package timer

import (
	"log/slog"
	"sync"
	"time"
)

// Kind groups timers by owner so one owner can cancel its own set.
type Kind string

const (
	KindScript  Kind = "script"  // car.after / car.every
	KindPoll    Kind = "poll"    // battery polling while connected
	KindStarter Kind = "starter" // local starter-off after a crank
)

// Event is sent when a timer fires.
type Event struct {
	ID        int
	Kind      Kind
	Repeating bool
}

// Service schedules timers and owns their IDs and cancellation.
// Repeating timers keep a fixed cadence measured from their first deadline,
// so a slow receiver does not make them drift.
type Service struct {
	log    *slog.Logger
	events chan<- Event

	mu     sync.Mutex
	timers map[int]*entry
	nextID int
}

type entry struct {
	kind     Kind
	interval time.Duration // 0 = one-shot
	due      time.Time
	timer    *time.Timer
}

// NewService creates a timer service that sends fired timers to events.
// A fire that finds events full is dropped.
func NewService(events chan<- Event, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		log:    log,
		events: events,
		timers: make(map[int]*entry),
	}
}

// After schedules a one-shot timer and returns its ID.
func (s *Service) After(kind Kind, d time.Duration) int {
	return s.schedule(kind, d, 0)
}

// Every schedules a repeating timer whose first fire is after d.
func (s *Service) Every(kind Kind, d time.Duration) int {
	if d <= 0 {
		d = time.Millisecond
	}
	return s.schedule(kind, d, d)
}

func (s *Service) schedule(kind Kind, d, interval time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	e := &entry{kind: kind, interval: interval, due: time.Now().Add(d)}
	e.timer = time.AfterFunc(d, func() { s.fire(id) })
	s.timers[id] = e
	return id
}

func (s *Service) fire(id int) {
	s.mu.Lock()
	e, ok := s.timers[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if e.interval > 0 {
		e.due = e.due.Add(e.interval)
		if now := time.Now(); e.due.Before(now) {
			// Missed whole periods are skipped rather than replayed.
			e.due = now.Add(e.interval - now.Sub(e.due)%e.interval)
		}
		e.timer = time.AfterFunc(time.Until(e.due), func() { s.fire(id) })
	} else {
		delete(s.timers, id)
	}
	ev := Event{ID: id, Kind: e.kind, Repeating: e.interval > 0}
	s.mu.Unlock()

	select {
	case s.events <- ev:
	default:
		s.log.Debug("timer event dropped", "id", id, "kind", ev.Kind)
	}
}

// Cancel stops a timer. Reports whether it was still scheduled.
func (s *Service) Cancel(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[id]
	if ok {
		e.timer.Stop()
		delete(s.timers, id)
	}
	return ok
}

// CancelKind stops every timer of the given kind.
func (s *Service) CancelKind(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.timers {
		if e.kind == kind {
			e.timer.Stop()
			delete(s.timers, id)
		}
	}
}

// CancelAll stops every timer.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.timers {
		e.timer.Stop()
	}
	s.timers = make(map[int]*entry)
}

// Active reports whether id is still scheduled.
func (s *Service) Active(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Len returns the number of scheduled timers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
