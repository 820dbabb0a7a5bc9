// Package actuator sends opaque command payloads to the heater through a
// local gateway. The channel is one-way: a send reports transport success
// only, and the sole way to observe its effect is to re-decode the panel.
package actuator

import "context"

// Method selects the gateway's logical command channel.
type Method string

const (
	// MethodIR replays a captured infra-red code.
	MethodIR Method = "send_ir_code"
	// MethodElectrical injects a captured electrical command.
	MethodElectrical Method = "send_other_ele_cmd"
)

// Transport sends one opaque payload over the chosen channel. Implementations
// must rate-limit themselves; callers issue commands back to back and rely on
// the transport to space them.
type Transport interface {
	Send(ctx context.Context, method Method, payload string) error
}

// Payloads holds the raw command strings captured from the factory remote.
type Payloads struct {
	ScreenOn string
	TempUp   string
	TempDown string
	Toggle   string
	Mode     string
}

// Commands maps appliance actions to transport sends. Every action is a
// single blind keypress; sequences belong to the command sequencer.
type Commands struct {
	transport Transport
	payloads  Payloads
}

// NewCommands binds payloads to a transport.
func NewCommands(transport Transport, payloads Payloads) *Commands {
	return &Commands{transport: transport, payloads: payloads}
}

// ScreenOn wakes the display.
func (c *Commands) ScreenOn(ctx context.Context) error {
	return c.transport.Send(ctx, MethodIR, c.payloads.ScreenOn)
}

// TempStep presses temperature up (positive direction) or down once.
func (c *Commands) TempStep(ctx context.Context, up bool) error {
	payload := c.payloads.TempUp
	if !up {
		payload = c.payloads.TempDown
	}
	return c.transport.Send(ctx, MethodElectrical, payload)
}

// TogglePower presses the power key once.
func (c *Commands) TogglePower(ctx context.Context) error {
	return c.transport.Send(ctx, MethodElectrical, c.payloads.Toggle)
}

// AdvanceMode presses the mode key once, rotating LOW -> HALF -> FULL -> LOW.
func (c *Commands) AdvanceMode(ctx context.Context) error {
	return c.transport.Send(ctx, MethodIR, c.payloads.Mode)
}
