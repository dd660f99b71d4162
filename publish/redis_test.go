package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/publish"
)

func setup(t *testing.T, opts ...publish.Option) (*miniredis.Miniredis, *backend.Client, *publish.Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client, publish.NewFromClient(client, opts...)
}

func TestRedisKeepsPeerHash(t *testing.T) {
	mr, _, pub := setup(t, publish.WithPeerSource(func() string { return "AA:BB" }))

	pub.OnStateChanged(event.Connected)
	pub.OnDeviceName("HC-05")
	pub.OnMessage("Battery 12.4")
	pub.OnMessage("EngineState 1")
	pub.OnMessage("not a reading")
	pub.OnError(errors.New("read: connection reset"))
	require.NoError(t, pub.Close())

	key := pub.PeerKey("AA:BB")
	assert.Equal(t, "carremote:AA:BB", key)
	assert.Equal(t, "connected", mr.HGet(key, "state"))
	assert.Equal(t, "HC-05", mr.HGet(key, "device"))
	assert.Equal(t, "12.4", mr.HGet(key, "Battery"))
	assert.Equal(t, "1", mr.HGet(key, "EngineState"))
	assert.Equal(t, "read: connection reset", mr.HGet(key, "last_error"))
	assert.NotEmpty(t, mr.HGet(key, "updated"))

	// Frames with unknown field names stay out of the hash.
	fields, err := mr.HKeys(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"state", "device", "Battery", "EngineState", "last_error", "updated"}, fields)
}

func TestRedisPublishesEvents(t *testing.T) {
	_, client, pub := setup(t, publish.WithPrefix("car"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, pub.EventsChannel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "car:events", pub.EventsChannel())

	pub.OnStateChanged(event.Connecting)
	pub.OnSent([]byte("EngineON\n"))
	pub.OnMessage("EngineState 1")

	var got []publish.Message
	ch := sub.Channel()
	for len(got) < 3 {
		select {
		case m := <-ch:
			var msg publish.Message
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &msg))
			got = append(got, msg)
		case <-ctx.Done():
			t.Fatalf("received %d of 3 messages", len(got))
		}
	}

	assert.Equal(t, "state", got[0].Type)
	assert.Equal(t, "connecting", got[0].State)
	assert.Equal(t, "sent", got[1].Type)
	assert.Equal(t, "EngineON\n", got[1].Payload)
	assert.Equal(t, "message", got[2].Type)
	assert.Equal(t, "EngineState 1", got[2].Payload)
	assert.False(t, got[2].Time.IsZero())

	require.NoError(t, pub.Close())
}

func TestRedisWithoutPeerSkipsHash(t *testing.T) {
	mr, _, pub := setup(t)
	pub.OnStateChanged(event.Idle)
	require.NoError(t, pub.Close())
	assert.Empty(t, mr.Keys())
}

func TestRedisDropsUnknownReadings(t *testing.T) {
	mr, _, pub := setup(t, publish.WithPeerSource(func() string { return "car" }))
	pub.OnMessage("Firmware 2.1")
	pub.OnMessage("OK")
	require.NoError(t, pub.Close())
	assert.False(t, mr.Exists("carremote:car"))
}

func TestRedisSetPeerSource(t *testing.T) {
	mr, _, pub := setup(t)
	pub.SetPeerSource(func() string { return "car" })
	pub.OnDeviceName("Garage")
	require.NoError(t, pub.Close())
	assert.Equal(t, "Garage", mr.HGet("carremote:car", "device"))
}

func TestRedisFailuresAreSwallowed(t *testing.T) {
	pub := publish.New("127.0.0.1:1", "", 0,
		publish.WithTimeout(100*time.Millisecond),
		publish.WithPeerSource(func() string { return "car" }),
	)

	pub.OnStateChanged(event.Connected)
	pub.OnMessage("Battery 12.6")

	done := make(chan error, 1)
	go func() { done <- pub.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on an unreachable server")
	}
}

func TestRedisCloseIsIdempotent(t *testing.T) {
	_, _, pub := setup(t)
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	pub.OnMessage("ignored after close")
}
