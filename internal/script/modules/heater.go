package modules

import (
	"context"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

// Heater is the control surface exposed to scripts.
type Heater interface {
	State() fusion.State
	Targets() (int, fusion.Mode)
	SetTargetTemperature(ctx context.Context, target int) error
	SetTargetMode(ctx context.Context, target fusion.Mode) error
	SetPower(ctx context.Context, on bool) error
}

// HeaterModule provides the heater module to Lua.
type HeaterModule struct {
	heater Heater

	stateHandlers []*lua.LFunction
}

// NewHeaterModule creates a new heater module.
func NewHeaterModule(heater Heater) *HeaterModule {
	return &HeaterModule{heater: heater}
}

// Loader is the module loader for Lua.
func (m *HeaterModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "state", L.NewFunction(m.state))
	L.SetField(mod, "targets", L.NewFunction(m.targets))
	L.SetField(mod, "set_temperature", L.NewFunction(m.setTemperature))
	L.SetField(mod, "set_mode", L.NewFunction(m.setMode))
	L.SetField(mod, "set_power", L.NewFunction(m.setPower))
	L.SetField(mod, "on_state_change", L.NewFunction(m.onStateChange))

	L.Push(mod)
	return 1
}

// state() -> { mode, temperature|nil }
func (m *HeaterModule) state(L *lua.LState) int {
	L.Push(stateToTable(L, m.heater.State()))
	return 1
}

// targets() -> { temperature, mode }
func (m *HeaterModule) targets(L *lua.LState) int {
	temp, mode := m.heater.Targets()
	tbl := L.NewTable()
	L.SetField(tbl, "temperature", lua.LNumber(temp))
	L.SetField(tbl, "mode", lua.LString(mode.String()))
	L.Push(tbl)
	return 1
}

// set_temperature(value) -> ok, err
func (m *HeaterModule) setTemperature(L *lua.LState) int {
	value := L.CheckInt(1)

	if err := m.heater.SetTargetTemperature(L.Context(), value); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// set_mode(name) -> ok, err
func (m *HeaterModule) setMode(L *lua.LState) int {
	name := L.CheckString(1)

	mode, err := fusion.ParseMode(name)
	if err == nil {
		err = m.heater.SetTargetMode(L.Context(), mode)
	}
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// set_power(on) -> ok, err
func (m *HeaterModule) setPower(L *lua.LState) int {
	on := L.CheckBool(1)

	if err := m.heater.SetPower(L.Context(), on); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// on_state_change(fn) - register a handler called with (prev, next) tables
func (m *HeaterModule) onStateChange(L *lua.LState) int {
	fn := L.CheckFunction(1)
	m.stateHandlers = append(m.stateHandlers, fn)
	return 0
}

// DispatchStateChanged calls every registered handler. Must run on the Lua
// worker goroutine.
func (m *HeaterModule) DispatchStateChanged(L *lua.LState, prev, next fusion.State) {
	for _, fn := range m.stateHandlers {
		err := L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, stateToTable(L, prev), stateToTable(L, next))
		if err != nil {
			log.Warn().Err(err).Msg("Lua state change handler failed")
		}
	}
}

func stateToTable(L *lua.LState, st fusion.State) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "mode", lua.LString(st.Mode.String()))
	if st.HasTemperature {
		L.SetField(tbl, "temperature", lua.LNumber(st.Temperature))
	}
	return tbl
}
