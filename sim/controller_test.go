package sim

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drake/carremote/transport"
)

func dial(t *testing.T, c *Controller) (net.Conn, *bufio.Reader) {
	t.Helper()
	lb := transport.NewLoopback(c.Handler())
	conn, err := lb.Open(context.Background(), "sim")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	nc, ok := conn.(net.Conn)
	require.True(t, ok)
	return nc, bufio.NewReader(conn)
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestControllerAnswersCommands(t *testing.T) {
	c := New(nil)
	conn, r := dial(t, c)

	conn.Write([]byte("EngineON\n"))
	assert.Equal(t, "EngineState 1\n", readLine(t, conn, r))

	conn.Write([]byte("HighBoost\n"))
	assert.Equal(t, "BoostMode 1\n", readLine(t, conn, r))

	conn.Write([]byte("AccessoriesOFF\n"))
	assert.Equal(t, "AccessoriesState 0\n", readLine(t, conn, r))

	c.SetBattery("11.9")
	conn.Write([]byte("BatteryVoltage\n"))
	assert.Equal(t, "Battery 11.9\n", readLine(t, conn, r))

	st := c.State()
	assert.True(t, st.Engine)
	assert.True(t, st.BoostHigh)
	assert.Equal(t, []string{"EngineON", "HighBoost", "AccessoriesOFF", "BatteryVoltage"}, c.Received())
}

func TestControllerDumpsStateOnHello(t *testing.T) {
	c := New(nil)
	conn, r := dial(t, c)

	conn.Write([]byte("IgnitionON\n"))
	readLine(t, conn, r)

	conn.Write([]byte("Connected\n"))
	var got []string
	for range 6 {
		got = append(got, readLine(t, conn, r))
	}
	assert.Equal(t, []string{
		"EngineState 0\n",
		"BoostMode 0\n",
		"AccessoriesState 0\n",
		"IgnitionState 1\n",
		"StarterState 0\n",
		"Battery 12.6\n",
	}, got)
}

func TestControllerStarter(t *testing.T) {
	c := New(nil)
	c.StarterUnit = 10 * time.Millisecond
	conn, r := dial(t, c)

	conn.Write([]byte("StarterON 2\n"))
	assert.Equal(t, "StarterState 1\n", readLine(t, conn, r))
	assert.Equal(t, "StarterState 0\n", readLine(t, conn, r))
	assert.Equal(t, "EngineState 1\n", readLine(t, conn, r))

	// Out of range and unknown commands are ignored.
	conn.Write([]byte("StarterON 99\nSelfDestruct\nBatteryVoltage\n"))
	assert.Equal(t, "Battery 12.6\n", readLine(t, conn, r))
}
