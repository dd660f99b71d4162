package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
		return Event{}
	}
}

func TestAfterFiresOnce(t *testing.T) {
	ch := make(chan Event, 4)
	s := NewService(ch, nil)

	id := s.After(KindScript, 5*time.Millisecond)
	assert.True(t, s.Active(id))

	ev := recv(t, ch)
	assert.Equal(t, Event{ID: id, Kind: KindScript}, ev)
	assert.False(t, s.Active(id))
	assert.Zero(t, s.Len())
}

func TestEveryRepeatsUntilCancelled(t *testing.T) {
	ch := make(chan Event, 16)
	s := NewService(ch, nil)

	id := s.Every(KindPoll, 5*time.Millisecond)
	for range 3 {
		ev := recv(t, ch)
		assert.Equal(t, id, ev.ID)
		assert.True(t, ev.Repeating)
	}

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))

	// Drain anything already in flight, then expect silence.
	time.Sleep(10 * time.Millisecond)
	for len(ch) > 0 {
		<-ch
	}
	select {
	case ev := <-ch:
		t.Fatalf("cancelled timer fired: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCancelKind(t *testing.T) {
	ch := make(chan Event, 4)
	s := NewService(ch, nil)

	s.Every(KindPoll, time.Hour)
	s.After(KindPoll, time.Hour)
	script := s.After(KindScript, time.Hour)
	require.Equal(t, 3, s.Len())

	s.CancelKind(KindPoll)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Active(script))

	s.CancelAll()
	assert.Zero(t, s.Len())
}

func TestFullChannelDropsFire(t *testing.T) {
	ch := make(chan Event) // nobody receives
	s := NewService(ch, nil)

	id := s.After(KindStarter, time.Millisecond)
	require.Eventually(t, func() bool { return !s.Active(id) }, time.Second, time.Millisecond)
}
