package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// LogModule provides structured logging functions to Lua.
type LogModule struct{}

// NewLogModule creates a new log module
func NewLogModule() *LogModule {
	return &LogModule{}
}

// Loader is the module loader for Lua
func (m *LogModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "debug", L.NewFunction(m.debug))
	L.SetField(mod, "info", L.NewFunction(m.info))
	L.SetField(mod, "warn", L.NewFunction(m.warn))
	L.SetField(mod, "error", L.NewFunction(m.errorLog))

	L.Push(mod)
	return 1
}

func (m *LogModule) debug(L *lua.LState) int {
	msg := L.CheckString(1)
	event := log.Debug().Str("source", "lua")
	for k, v := range m.parseFields(L, 2) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
	return 0
}

func (m *LogModule) info(L *lua.LState) int {
	msg := L.CheckString(1)
	event := log.Info().Str("source", "lua")
	for k, v := range m.parseFields(L, 2) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
	return 0
}

func (m *LogModule) warn(L *lua.LState) int {
	msg := L.CheckString(1)
	event := log.Warn().Str("source", "lua")
	for k, v := range m.parseFields(L, 2) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
	return 0
}

func (m *LogModule) errorLog(L *lua.LState) int {
	msg := L.CheckString(1)
	event := log.Error().Str("source", "lua")
	for k, v := range m.parseFields(L, 2) {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
	return 0
}

// parseFields reads an optional table argument of structured fields.
func (m *LogModule) parseFields(L *lua.LState, argIndex int) map[string]interface{} {
	fields := make(map[string]interface{})

	if tbl, ok := L.Get(argIndex).(*lua.LTable); ok {
		tbl.ForEach(func(key, value lua.LValue) {
			fields[lua.LVAsString(key)] = LuaToGo(value)
		})
	}
	return fields
}
