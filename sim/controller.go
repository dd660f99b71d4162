// Package sim provides a software stand-in for the accessory controller. It
// speaks the device side of the protocol and is served through a
// transport.Loopback for offline use and tests.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/drake/carremote/network"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/transport"
)

// DefaultBattery is the voltage reported when none is configured.
const DefaultBattery = "12.6"

// Controller simulates one accessory controller. State is shared by every
// connection it serves, like the real device.
type Controller struct {
	log *slog.Logger

	// Unit of StarterON durations. Tests shrink it.
	StarterUnit time.Duration

	mu    sync.Mutex
	state protocol.Telemetry
	seen  []string
}

// New creates a controller with everything off.
func New(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		log:         log,
		StarterUnit: time.Second,
		state:       protocol.Telemetry{Battery: DefaultBattery},
	}
}

// SetBattery changes the reported battery voltage.
func (c *Controller) SetBattery(volts string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Battery = volts
}

// State returns the simulated device state.
func (c *Controller) State() protocol.Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Received returns every command frame received so far.
func (c *Controller) Received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

// Handler serves the far end of loopback connections.
func (c *Controller) Handler() transport.Handler {
	return func(peer string, remote net.Conn) {
		defer remote.Close()
		c.Serve(context.Background(), remote)
	}
}

// Serve answers commands read from rw until the stream ends or ctx is done.
func (c *Controller) Serve(ctx context.Context, rw io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &replier{w: rw}
	frames := network.NewFrameReader(rw, 0)
	for {
		frame, err := frames.Next(ctx)
		if err != nil {
			return err
		}
		c.handle(ctx, frame, out)
	}
}

func (c *Controller) handle(ctx context.Context, frame string, out *replier) {
	c.mu.Lock()
	c.seen = append(c.seen, frame)
	c.mu.Unlock()

	r, _ := protocol.ParseReading(frame)
	switch r.Field {
	case protocol.VerbEngineOn, protocol.VerbEngineOff:
		on := r.Field == protocol.VerbEngineOn
		c.update(func(t *protocol.Telemetry) { t.Engine = on })
		out.flag(protocol.FieldEngine, on)
	case protocol.VerbHighBoost, protocol.VerbLowBoost:
		high := r.Field == protocol.VerbHighBoost
		c.update(func(t *protocol.Telemetry) { t.BoostHigh = high })
		out.flag(protocol.FieldBoost, high)
	case protocol.VerbAccessoriesOn, protocol.VerbAccessoriesOff:
		on := r.Field == protocol.VerbAccessoriesOn
		c.update(func(t *protocol.Telemetry) { t.Accessories = on })
		out.flag(protocol.FieldAccessories, on)
	case protocol.VerbIgnitionOn, protocol.VerbIgnitionOff:
		on := r.Field == protocol.VerbIgnitionOn
		c.update(func(t *protocol.Telemetry) { t.Ignition = on })
		out.flag(protocol.FieldIgnition, on)
	case protocol.VerbStarterOn:
		n, err := strconv.Atoi(r.Value)
		if err != nil || n < protocol.MinStarterSeconds || n > protocol.MaxStarterSeconds {
			c.log.Debug("bad starter duration", "value", r.Value)
			return
		}
		c.crank(ctx, time.Duration(n)*c.StarterUnit, out)
	case protocol.VerbBatteryVoltage:
		out.line(protocol.FieldBattery, c.State().Battery)
	case protocol.VerbConnected:
		c.dump(out)
	default:
		c.log.Debug("ignoring unknown command", "frame", frame)
	}
}

// crank runs the starter for d, after which the engine is running.
func (c *Controller) crank(ctx context.Context, d time.Duration, out *replier) {
	c.update(func(t *protocol.Telemetry) { t.Starter = true })
	out.flag(protocol.FieldStarter, true)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		c.update(func(t *protocol.Telemetry) {
			t.Starter = false
			t.Engine = true
		})
		out.flag(protocol.FieldStarter, false)
		out.flag(protocol.FieldEngine, true)
	}()
}

func (c *Controller) dump(out *replier) {
	st := c.State()
	out.flag(protocol.FieldEngine, st.Engine)
	out.flag(protocol.FieldBoost, st.BoostHigh)
	out.flag(protocol.FieldAccessories, st.Accessories)
	out.flag(protocol.FieldIgnition, st.Ignition)
	out.flag(protocol.FieldStarter, st.Starter)
	out.line(protocol.FieldBattery, st.Battery)
}

func (c *Controller) update(fn func(*protocol.Telemetry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.state.Updated = time.Now()
}

// replier serializes writes from the command loop and starter timers.
type replier struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *replier) line(field, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s\n", field, value)
}

func (r *replier) flag(field string, on bool) {
	v := "0"
	if on {
		v = "1"
	}
	r.line(field, v)
}
