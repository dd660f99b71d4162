// Package protocol defines the line-oriented text protocol spoken by the
// accessory controller: commands sent to the device and readings it reports.
//
// Every message is a single line terminated by '\n'. Commands are a verb with
// an optional argument ("StarterON 3"); readings are a field name and a value
// separated by the first space ("Battery 12.6").
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire verbs understood by the controller.
const (
	VerbEngineOn       = "EngineON"
	VerbEngineOff      = "EngineOFF"
	VerbHighBoost      = "HighBoost"
	VerbLowBoost       = "LowBoost"
	VerbAccessoriesOn  = "AccessoriesON"
	VerbAccessoriesOff = "AccessoriesOFF"
	VerbIgnitionOn     = "IgnitionON"
	VerbIgnitionOff    = "IgnitionOFF"
	VerbStarterOn      = "StarterON"
	VerbBatteryVoltage = "BatteryVoltage"
	VerbConnected      = "Connected"
)

// Starter duration bounds, in seconds.
const (
	MinStarterSeconds     = 1
	MaxStarterSeconds     = 10
	DefaultStarterSeconds = 3
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrStarterDuration = fmt.Errorf("starter duration must be %d-%d seconds", MinStarterSeconds, MaxStarterSeconds)
)

// Command is one outbound instruction.
type Command struct {
	Verb string
	Arg  string
}

// Encode returns the wire form, newline terminated.
func (c Command) Encode() []byte {
	return []byte(c.String() + "\n")
}

// String returns the wire form without the terminator.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Verb
	}
	return c.Verb + " " + c.Arg
}

func EngineOn() Command       { return Command{Verb: VerbEngineOn} }
func EngineOff() Command      { return Command{Verb: VerbEngineOff} }
func HighBoost() Command      { return Command{Verb: VerbHighBoost} }
func LowBoost() Command       { return Command{Verb: VerbLowBoost} }
func AccessoriesOn() Command  { return Command{Verb: VerbAccessoriesOn} }
func AccessoriesOff() Command { return Command{Verb: VerbAccessoriesOff} }
func IgnitionOn() Command     { return Command{Verb: VerbIgnitionOn} }
func IgnitionOff() Command    { return Command{Verb: VerbIgnitionOff} }

// BatteryVoltage asks the controller to report the battery voltage.
func BatteryVoltage() Command { return Command{Verb: VerbBatteryVoltage} }

// Hello announces the client once the device has been identified. The
// controller answers with its current state.
func Hello() Command { return Command{Verb: VerbConnected} }

// Starter cranks the starter for the given number of seconds.
func Starter(seconds int) (Command, error) {
	if seconds < MinStarterSeconds || seconds > MaxStarterSeconds {
		return Command{}, fmt.Errorf("protocol: %d: %w", seconds, ErrStarterDuration)
	}
	return Command{Verb: VerbStarterOn, Arg: strconv.Itoa(seconds)}, nil
}

// phrases maps user phrases to their commands. Keys are lower-case words
// joined by single spaces.
var phrases = map[string]Command{
	"engine on":       EngineOn(),
	"engine off":      EngineOff(),
	"boost high":      HighBoost(),
	"boost low":       LowBoost(),
	"high boost":      HighBoost(),
	"low boost":       LowBoost(),
	"acc on":          AccessoriesOn(),
	"acc off":         AccessoriesOff(),
	"accessories on":  AccessoriesOn(),
	"accessories off": AccessoriesOff(),
	"ignition on":     IgnitionOn(),
	"ignition off":    IgnitionOff(),
	"battery":         BatteryVoltage(),
}

// ParseCommand turns a user phrase ("engine on", "starter 5", "battery") or a
// raw wire verb ("EngineON", "StarterON 3") into a Command. A bare "starter"
// uses defaultStarter seconds.
func ParseCommand(line string, defaultStarter int) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("protocol: empty command: %w", ErrUnknownCommand)
	}

	// Raw wire verbs are case sensitive.
	switch fields[0] {
	case VerbEngineOn, VerbEngineOff, VerbHighBoost, VerbLowBoost,
		VerbAccessoriesOn, VerbAccessoriesOff, VerbIgnitionOn, VerbIgnitionOff,
		VerbBatteryVoltage, VerbConnected:
		if len(fields) == 1 {
			return Command{Verb: fields[0]}, nil
		}
	case VerbStarterOn:
		return parseStarter(fields[1:], defaultStarter)
	}

	lower := strings.ToLower(strings.Join(fields, " "))
	if cmd, ok := phrases[lower]; ok {
		return cmd, nil
	}
	if strings.EqualFold(fields[0], "starter") || strings.EqualFold(fields[0], "crank") {
		return parseStarter(fields[1:], defaultStarter)
	}

	return Command{}, fmt.Errorf("protocol: %q: %w", line, ErrUnknownCommand)
}

func parseStarter(args []string, defaultSeconds int) (Command, error) {
	switch len(args) {
	case 0:
		if defaultSeconds == 0 {
			defaultSeconds = DefaultStarterSeconds
		}
		return Starter(defaultSeconds)
	case 1:
		n, err := strconv.Atoi(strings.TrimSuffix(args[0], "s"))
		if err != nil {
			return Command{}, fmt.Errorf("protocol: starter %q: %w", args[0], ErrStarterDuration)
		}
		return Starter(n)
	default:
		return Command{}, fmt.Errorf("protocol: starter takes one argument: %w", ErrUnknownCommand)
	}
}
