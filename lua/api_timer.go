package lua

import (
	"time"

	glua "github.com/yuin/gopher-lua"
)

// registerTimerFuncs registers car.after, car.every and car.cancel.
func (e *Engine) registerTimerFuncs() {
	// car.after(seconds, fn): one-shot timer, returns ID
	e.L.SetField(e.carTable, "after", e.L.NewFunction(func(L *glua.LState) int {
		d := toDuration(L.CheckNumber(1))
		fn := L.CheckFunction(2)

		id := e.host.TimerAfter(d)
		e.callbacks[id] = fn
		L.Push(glua.LNumber(id))
		return 1
	}))

	// car.every(seconds, fn): repeating timer, returns ID
	e.L.SetField(e.carTable, "every", e.L.NewFunction(func(L *glua.LState) int {
		d := toDuration(L.CheckNumber(1))
		if d <= 0 {
			L.ArgError(1, "interval must be positive")
			return 0
		}
		fn := L.CheckFunction(2)

		id := e.host.TimerEvery(d)
		e.callbacks[id] = fn
		L.Push(glua.LNumber(id))
		return 1
	}))

	// car.cancel(id): stops a timer; returns whether it was pending
	e.L.SetField(e.carTable, "cancel", e.L.NewFunction(func(L *glua.LState) int {
		id := int(L.CheckNumber(1))
		_, ok := e.callbacks[id]
		if ok {
			delete(e.callbacks, id)
			e.host.TimerCancel(id)
		}
		L.Push(glua.LBool(ok))
		return 1
	}))
}

// toDuration converts Lua number seconds to a Go duration.
func toDuration(seconds glua.LNumber) time.Duration {
	return time.Duration(float64(seconds) * float64(time.Second))
}
