package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reading fields reported by the controller.
const (
	FieldEngine      = "EngineState"
	FieldBoost       = "BoostMode"
	FieldAccessories = "AccessoriesState"
	FieldIgnition    = "IgnitionState"
	FieldStarter     = "StarterState"
	FieldBattery     = "Battery"
)

// Reading is one inbound "Field value" frame.
type Reading struct {
	Field string
	Value string
}

// On reports whether the value is the controller's "on" flag.
func (r Reading) On() bool {
	return r.Value == "1"
}

// ParseReading splits a frame on its first space. The value is trimmed and
// may be empty. Returns false for an empty frame.
func ParseReading(frame string) (Reading, bool) {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return Reading{}, false
	}
	field, value, _ := strings.Cut(frame, " ")
	return Reading{Field: field, Value: strings.TrimSpace(value)}, true
}

// KnownField reports whether field is one the controller reports.
func KnownField(field string) bool {
	switch field {
	case FieldEngine, FieldBoost, FieldAccessories, FieldIgnition, FieldStarter, FieldBattery:
		return true
	}
	return false
}

// Telemetry is the last known state of the controller.
type Telemetry struct {
	Engine      bool
	BoostHigh   bool
	Accessories bool
	Ignition    bool
	Starter     bool

	// Battery is the raw reported value; Volts is its parsed form, or 0.
	Battery string
	Volts   float64

	Updated time.Time
}

// Apply folds a reading into the snapshot. It returns false, leaving the
// snapshot untouched, for fields it does not know.
func (t *Telemetry) Apply(r Reading) bool {
	switch r.Field {
	case FieldEngine:
		t.Engine = r.On()
	case FieldBoost:
		t.BoostHigh = r.On()
	case FieldAccessories:
		t.Accessories = r.On()
	case FieldIgnition:
		t.Ignition = r.On()
	case FieldStarter:
		t.Starter = r.On()
	case FieldBattery:
		t.Battery = r.Value
		t.Volts, _ = strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(r.Value), "V"), 64)
	default:
		return false
	}
	t.Updated = time.Now()
	return true
}

// Toggle returns the command that flips the named control ("engine",
// "boost", "acc"/"accessories", "ignition") relative to the snapshot.
func (t Telemetry) Toggle(control string) (Command, error) {
	switch strings.ToLower(control) {
	case "engine":
		if t.Engine {
			return EngineOff(), nil
		}
		return EngineOn(), nil
	case "boost":
		if t.BoostHigh {
			return LowBoost(), nil
		}
		return HighBoost(), nil
	case "acc", "accessories":
		if t.Accessories {
			return AccessoriesOff(), nil
		}
		return AccessoriesOn(), nil
	case "ignition":
		if t.Ignition {
			return IgnitionOff(), nil
		}
		return IgnitionOn(), nil
	}
	return Command{}, fmt.Errorf("protocol: toggle %q: %w", control, ErrUnknownCommand)
}

// Fields returns the snapshot as display rows, in wire field order.
func (t Telemetry) Fields() [][2]string {
	onOff := func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	}
	boost := "Low"
	if t.BoostHigh {
		boost = "High"
	}
	battery := ""
	if t.Battery != "" {
		battery = t.Battery + " V"
	}
	return [][2]string{
		{"Engine", onOff(t.Engine)},
		{"Boost", boost},
		{"Accessories", onOff(t.Accessories)},
		{"Ignition", onOff(t.Ignition)},
		{"Starter", onOff(t.Starter)},
		{"Battery", battery},
	}
}
