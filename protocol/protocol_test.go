package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "EngineON\n", string(EngineOn().Encode()))
	assert.Equal(t, "BatteryVoltage\n", string(BatteryVoltage().Encode()))
	assert.Equal(t, "Connected\n", string(Hello().Encode()))

	cmd, err := Starter(3)
	require.NoError(t, err)
	assert.Equal(t, "StarterON 3\n", string(cmd.Encode()))
	assert.Equal(t, "StarterON 3", cmd.String())
}

func TestStarterBounds(t *testing.T) {
	for _, n := range []int{0, -1, 11} {
		_, err := Starter(n)
		assert.ErrorIs(t, err, ErrStarterDuration, "%d", n)
	}
	for _, n := range []int{MinStarterSeconds, MaxStarterSeconds} {
		_, err := Starter(n)
		assert.NoError(t, err)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"engine on", "EngineON"},
		{"  Engine   OFF ", "EngineOFF"},
		{"boost high", "HighBoost"},
		{"low boost", "LowBoost"},
		{"acc on", "AccessoriesON"},
		{"accessories off", "AccessoriesOFF"},
		{"ignition on", "IgnitionON"},
		{"battery", "BatteryVoltage"},
		{"starter", "StarterON 4"},
		{"starter 5", "StarterON 5"},
		{"crank 2s", "StarterON 2"},
		{"EngineON", "EngineON"},
		{"StarterON 3", "StarterON 3"},
		{"StarterON", "StarterON 4"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.String())
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	_, err := ParseCommand("", 3)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ParseCommand("launch rockets", 3)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ParseCommand("starter 30", 3)
	assert.ErrorIs(t, err, ErrStarterDuration)

	_, err = ParseCommand("starter soon", 3)
	assert.ErrorIs(t, err, ErrStarterDuration)

	_, err = ParseCommand("engineon", 3)
	assert.ErrorIs(t, err, ErrUnknownCommand, "raw verbs are case sensitive")

	cmd, err := ParseCommand("starter", 0)
	require.NoError(t, err)
	assert.Equal(t, "StarterON 3", cmd.String())
}

func TestParseReading(t *testing.T) {
	r, ok := ParseReading("Battery 12.6")
	require.True(t, ok)
	assert.Equal(t, Reading{Field: "Battery", Value: "12.6"}, r)

	r, ok = ParseReading("EngineState   1  ")
	require.True(t, ok)
	assert.Equal(t, Reading{Field: "EngineState", Value: "1"}, r)
	assert.True(t, r.On())

	r, ok = ParseReading("StarterState")
	require.True(t, ok)
	assert.Equal(t, "", r.Value)

	_, ok = ParseReading("   ")
	assert.False(t, ok)
}

func TestKnownField(t *testing.T) {
	for _, f := range []string{FieldEngine, FieldBoost, FieldAccessories, FieldIgnition, FieldStarter, FieldBattery} {
		assert.True(t, KnownField(f), f)
	}
	assert.False(t, KnownField("not"))
	assert.False(t, KnownField("battery"), "field names are case-sensitive")
	assert.False(t, KnownField(""))
}

func TestTelemetryApply(t *testing.T) {
	var tm Telemetry
	frames := []string{"EngineState 1", "BoostMode 1", "AccessoriesState 1", "IgnitionState 0", "StarterState 1", "Battery 12.6"}
	for _, f := range frames {
		r, _ := ParseReading(f)
		assert.True(t, tm.Apply(r), f)
	}

	assert.True(t, tm.Engine)
	assert.True(t, tm.BoostHigh)
	assert.True(t, tm.Accessories)
	assert.False(t, tm.Ignition)
	assert.True(t, tm.Starter)
	assert.Equal(t, "12.6", tm.Battery)
	assert.InDelta(t, 12.6, tm.Volts, 0.001)
	assert.False(t, tm.Updated.IsZero())

	before := tm
	assert.False(t, tm.Apply(Reading{Field: "OilPressure", Value: "3"}))
	assert.Equal(t, before, tm)

	tm.Apply(Reading{Field: FieldBattery, Value: "n/a"})
	assert.Equal(t, "n/a", tm.Battery)
	assert.Zero(t, tm.Volts)
}

func TestTelemetryToggle(t *testing.T) {
	tm := Telemetry{Engine: true}

	cmd, err := tm.Toggle("engine")
	require.NoError(t, err)
	assert.Equal(t, EngineOff(), cmd)

	cmd, err = tm.Toggle("boost")
	require.NoError(t, err)
	assert.Equal(t, HighBoost(), cmd)

	cmd, err = tm.Toggle("ACC")
	require.NoError(t, err)
	assert.Equal(t, AccessoriesOn(), cmd)

	_, err = tm.Toggle("wipers")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestTelemetryFields(t *testing.T) {
	rows := Telemetry{Engine: true, Battery: "12.6"}.Fields()
	require.Len(t, rows, 6)
	assert.Equal(t, [2]string{"Engine", "ON"}, rows[0])
	assert.Equal(t, [2]string{"Boost", "Low"}, rows[1])
	assert.Equal(t, [2]string{"Battery", "12.6 V"}, rows[5])
}
