package lua

import glua "github.com/yuin/gopher-lua"

// registerCoreFuncs registers car.send, car.command, car.print, car.connect,
// car.disconnect, car.state and car.telemetry.
func (e *Engine) registerCoreFuncs() {
	// car.send(text): writes raw wire text; a trailing newline is added if missing
	e.L.SetField(e.carTable, "send", e.L.NewFunction(func(L *glua.LState) int {
		text := L.CheckString(1)
		if len(text) == 0 || text[len(text)-1] != '\n' {
			text += "\n"
		}
		e.host.Send(text)
		return 0
	}))

	// car.command(phrase): sends a command phrase ("engine on", "starter 3").
	// Returns true, or nil and the error.
	e.L.SetField(e.carTable, "command", e.L.NewFunction(func(L *glua.LState) int {
		phrase := L.CheckString(1)
		if err := e.host.Command(phrase); err != nil {
			L.Push(glua.LNil)
			L.Push(glua.LString(err.Error()))
			return 2
		}
		L.Push(glua.LTrue)
		return 1
	}))

	// car.print(text): outputs text to the local display
	e.L.SetField(e.carTable, "print", e.L.NewFunction(func(L *glua.LState) int {
		e.host.Print(L.CheckString(1))
		return 0
	}))

	// car.connect([peer]): connects to peer, or the configured one
	e.L.SetField(e.carTable, "connect", e.L.NewFunction(func(L *glua.LState) int {
		e.host.Connect(L.OptString(1, ""))
		return 0
	}))

	// car.disconnect()
	e.L.SetField(e.carTable, "disconnect", e.L.NewFunction(func(L *glua.LState) int {
		e.host.Disconnect()
		return 0
	}))

	// car.state(): returns state, peer, device
	e.L.SetField(e.carTable, "state", e.L.NewFunction(func(L *glua.LState) int {
		snap := e.host.Snapshot()
		L.Push(glua.LString(snap.State))
		L.Push(glua.LString(snap.Peer))
		L.Push(glua.LString(snap.Device))
		return 3
	}))

	// car.telemetry(): returns a table of the last known readings
	e.L.SetField(e.carTable, "telemetry", e.L.NewFunction(func(L *glua.LState) int {
		t := e.host.Snapshot().Telemetry
		tbl := L.NewTable()
		tbl.RawSetString("engine", glua.LBool(t.Engine))
		tbl.RawSetString("boost_high", glua.LBool(t.BoostHigh))
		tbl.RawSetString("accessories", glua.LBool(t.Accessories))
		tbl.RawSetString("ignition", glua.LBool(t.Ignition))
		tbl.RawSetString("starter", glua.LBool(t.Starter))
		tbl.RawSetString("battery", glua.LString(t.Battery))
		tbl.RawSetString("volts", glua.LNumber(t.Volts))
		if !t.Updated.IsZero() {
			tbl.RawSetString("updated", glua.LNumber(t.Updated.Unix()))
		}
		L.Push(tbl)
		return 1
	}))
}
