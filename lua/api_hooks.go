package lua

import glua "github.com/yuin/gopher-lua"

// registerHookFuncs registers car.on and car.off.
func (e *Engine) registerHookFuncs() {
	// car.on(name, fn): adds a handler for an event hook
	e.L.SetField(e.carTable, "on", e.L.NewFunction(func(L *glua.LState) int {
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		if !hookNames[name] {
			L.ArgError(1, "unknown hook "+name)
			return 0
		}
		e.hooks[name] = append(e.hooks[name], fn)
		return 0
	}))

	// car.off(name): removes every handler for a hook
	e.L.SetField(e.carTable, "off", e.L.NewFunction(func(L *glua.LState) int {
		delete(e.hooks, L.CheckString(1))
		return 0
	}))
}
