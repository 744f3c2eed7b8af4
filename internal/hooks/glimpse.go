package hooks

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/glimpsed/internal/eventbus"
)

// GlimpseModule exposes event subscription to scripts:
//
//	local glimpse = require("glimpse")
//	glimpse.on(glimpse.events.CYCLE_COMPLETED, function(e) ... end)
type GlimpseModule struct {
	mu       sync.RWMutex
	handlers map[eventbus.EventType][]*lua.LFunction
}

// NewGlimpseModule creates an empty module
func NewGlimpseModule() *GlimpseModule {
	return &GlimpseModule{handlers: make(map[eventbus.EventType][]*lua.LFunction)}
}

// Loader is the module loader for Lua
func (m *GlimpseModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	events := L.NewTable()
	for _, t := range eventbus.EventTypes {
		L.SetField(events, strings.ToUpper(string(t)), lua.LString(t))
	}
	L.SetField(mod, "events", events)
	L.SetField(mod, "on", L.NewFunction(m.on))

	L.Push(mod)
	return 1
}

// on(event_type, fn) - Register a handler for an event type
func (m *GlimpseModule) on(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	t := eventbus.EventType(name)
	if !known(t) {
		L.ArgError(1, "unknown event type: "+name)
		return 0
	}

	m.mu.Lock()
	m.handlers[t] = append(m.handlers[t], fn)
	m.mu.Unlock()

	log.Debug().Str("event", name).Msg("Registered Lua hook")
	return 0
}

// Handlers returns the functions registered for t
func (m *GlimpseModule) Handlers(t eventbus.EventType) []*lua.LFunction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*lua.LFunction(nil), m.handlers[t]...)
}

// Count returns the number of registered handlers
func (m *GlimpseModule) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, fns := range m.handlers {
		n += len(fns)
	}
	return n
}

func known(t eventbus.EventType) bool {
	for _, e := range eventbus.EventTypes {
		if e == t {
			return true
		}
	}
	return false
}
