// Package lua embeds a gopher-lua VM that lets user scripts react to link
// events and drive the controller through the global "car" table.
package lua

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	glua "github.com/yuin/gopher-lua"
)

// Hook names accepted by car.on.
const (
	HookState   = "state"
	HookDevice  = "device"
	HookMessage = "message"
	HookReading = "reading"
	HookSent    = "sent"
	HookError   = "error"
)

var hookNames = map[string]bool{
	HookState: true, HookDevice: true, HookMessage: true,
	HookReading: true, HookSent: true, HookError: true,
}

const regexCacheSize = 100

// Engine wraps gopher-lua and manages the VM lifecycle.
// It must only be used from the goroutine that owns the session.
type Engine struct {
	L          *glua.LState
	regexCache *lru.Cache[string, *regexp.Regexp]
	log        *slog.Logger

	// Cached table reference
	carTable *glua.LTable

	host Host

	// Engine owns callbacks, the timer service owns IDs and scheduling
	callbacks map[int]*glua.LFunction
	hooks     map[string][]*glua.LFunction

	// Set while an error hook runs so its own failures are not re-reported.
	inErrorHook bool
}

// NewEngine creates an Engine with the given Host.
func NewEngine(host Host, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cache, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &Engine{
		regexCache: cache,
		log:        log,
		host:       host,
		callbacks:  make(map[int]*glua.LFunction),
		hooks:      make(map[string][]*glua.LFunction),
	}
}

// --- Lifecycle ---

// Init creates a fresh VM with the car API registered. Scripts and timers
// from a previous VM are discarded.
func (e *Engine) Init() error {
	if e.L != nil {
		e.L.Close()
	}
	e.L = glua.NewState()

	e.regexCache.Purge()
	e.host.TimerCancelAll()
	e.callbacks = make(map[int]*glua.LFunction)
	e.hooks = make(map[string][]*glua.LFunction)

	e.carTable = e.L.NewTable()
	e.L.SetGlobal("car", e.carTable)
	e.registerCoreFuncs()
	e.registerTimerFuncs()
	e.registerRegexFuncs()
	e.registerHookFuncs()
	return nil
}

// Close cleans up the Lua state.
func (e *Engine) Close() {
	e.host.TimerCancelAll()
	e.callbacks = nil
	e.hooks = nil
	if e.L != nil {
		e.L.Close()
		e.L = nil
	}
}

// --- Execution ---

// DoString executes a chunk of Lua code. name is used in stack traces.
func (e *Engine) DoString(name, code string) error {
	fn, err := e.L.Load(strings.NewReader(code), name)
	if err != nil {
		return err
	}
	e.L.Push(fn)
	return e.L.PCall(0, 0, nil)
}

// DoFile executes a script, letting it require modules from its directory.
func (e *Engine) DoFile(path string) error {
	absPath, err := filepath.Abs(expandTilde(path))
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)

	pkg := e.L.GetGlobal("package").(*glua.LTable)
	oldPath := e.L.GetField(pkg, "path").String()
	e.L.SetField(pkg, "path", glua.LString(dir+"/?.lua;"+oldPath))
	defer e.L.SetField(pkg, "path", glua.LString(oldPath))

	return e.L.DoFile(absPath)
}

// OnTimer runs the callback registered for a fired timer.
func (e *Engine) OnTimer(id int, repeating bool) {
	if e.L == nil {
		return
	}
	fn, ok := e.callbacks[id]
	if !ok {
		return // Cancelled, or belonged to a previous VM
	}
	if !repeating {
		delete(e.callbacks, id)
	}

	e.L.Push(fn)
	if err := e.L.PCall(0, 0, nil); err != nil {
		e.reportError(fmt.Errorf("timer %d: %w", id, err))
	}
}

// --- Event Hooks ---

func (e *Engine) OnState(state string) { e.CallHook(HookState, glua.LString(state)) }
func (e *Engine) OnDevice(name string) { e.CallHook(HookDevice, glua.LString(name)) }
func (e *Engine) OnMessage(text string) { e.CallHook(HookMessage, glua.LString(text)) }
func (e *Engine) OnSent(text string)    { e.CallHook(HookSent, glua.LString(text)) }

func (e *Engine) OnReading(field, value string) {
	e.CallHook(HookReading, glua.LString(field), glua.LString(value))
}

// OnError runs the error hooks. Failures inside them are only logged.
func (e *Engine) OnError(msg string) {
	if e.inErrorHook {
		return
	}
	e.inErrorHook = true
	defer func() { e.inErrorHook = false }()
	e.CallHook(HookError, glua.LString(msg))
}

// CallHook calls every handler registered for name, in registration order.
// A failing handler is reported and does not stop the others.
func (e *Engine) CallHook(name string, args ...glua.LValue) {
	if e.L == nil {
		return
	}
	for _, fn := range e.hooks[name] {
		err := e.L.CallByParam(glua.P{Fn: fn, NRet: 0, Protect: true}, args...)
		if err != nil {
			e.reportError(fmt.Errorf("%s hook: %w", name, err))
		}
	}
}

// HasHook reports whether any handler is registered for name.
func (e *Engine) HasHook(name string) bool {
	return len(e.hooks[name]) > 0
}

func (e *Engine) reportError(err error) {
	e.log.Warn("lua error", "err", err)
	e.host.Print("lua: " + err.Error())
	if !e.inErrorHook {
		e.OnError(err.Error())
	}
}

// expandTilde expands ~ to the home directory.
func expandTilde(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
